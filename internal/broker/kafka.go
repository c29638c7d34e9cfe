package broker

import (
	"context"
	"errors"
	"time"

	"commerce-backend/internal/util"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer writes envelopes to one topic. The Hash balancer keys partitions
// by the message key (the aggregate id), which is what preserves
// per-aggregate ordering on the channel.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a new Kafka producer for a topic
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	return &Producer{writer: writer}
}

// Publish appends a message keyed by the aggregate id. It returns once the
// write is durably accepted by the brokers.
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer reads one topic for one consumer group. Each Consumer processes
// its claimed partitions strictly sequentially; run several Consumers in the
// same group to parallelize across partitions.
type Consumer struct {
	reader         *kafka.Reader
	handleTimeout  time.Duration
	maxElapsedTime time.Duration
	logger         *zap.Logger
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, topic, groupID string, handleTimeout time.Duration) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})

	return &Consumer{
		reader:         reader,
		handleTimeout:  handleTimeout,
		maxElapsedTime: 0, // retry until the context is cancelled
		logger:         util.GetLogger(),
	}
}

// MessageHandler is a function type for handling messages
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsuming fetches, handles, and commits messages one at a time. A
// handler failure is retried with exponential backoff on the same message;
// the offset is only committed after success, so nothing in the partition is
// skipped. Each attempt runs under the configured processing timeout and a
// timed-out attempt counts as failed (the handler must be re-entrant).
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Starting consumer", zap.String("topic", c.reader.Config().Topic))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("Consumer context cancelled, stopping")
				return ctx.Err()
			}
			c.logger.Error("Error fetching message", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		if err := c.handleWithRetry(ctx, msg, handler); err != nil {
			// Only a cancelled context gets here; leave the offset
			// uncommitted so the message is redelivered.
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Error committing message", zap.Error(err))
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message, handler MessageHandler) error {
	attempt := func() error {
		handleCtx := ctx
		if c.handleTimeout > 0 {
			var cancel context.CancelFunc
			handleCtx, cancel = context.WithTimeout(ctx, c.handleTimeout)
			defer cancel()
		}
		return handler(handleCtx, msg)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxElapsedTime

	return backoff.RetryNotify(attempt, backoff.WithContext(bo, ctx),
		func(err error, next time.Duration) {
			c.logger.Warn("Handler failed, will redeliver",
				zap.String("topic", c.reader.Config().Topic),
				zap.Int64("offset", msg.Offset),
				zap.Duration("backoff", next),
				zap.Error(err))
		})
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
