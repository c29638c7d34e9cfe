package worker

import (
	"context"
	"errors"

	"commerce-backend/internal/broker"
	"commerce-backend/internal/dedup"
	"commerce-backend/internal/event"
	"commerce-backend/internal/ranking"
	"commerce-backend/internal/saga"
	"commerce-backend/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// SagaWorker consumes payment outcome events and drives the coupon saga.
// Every state-mutating apply runs under the dedup guard, so redelivery is
// effectively-once. An envelope that cannot be decoded goes to the
// dead-letter queue and its offset is committed, unblocking the partition.
type SagaWorker struct {
	consumer    *broker.Consumer
	coordinator *saga.Coordinator
	guard       *dedup.Guard
	dlq         *broker.DeadLetter
	topic       string
	logger      *zap.Logger
}

func NewSagaWorker(
	consumer *broker.Consumer,
	coordinator *saga.Coordinator,
	guard *dedup.Guard,
	dlq *broker.DeadLetter,
	topic string,
) *SagaWorker {
	return &SagaWorker{
		consumer:    consumer,
		coordinator: coordinator,
		guard:       guard,
		dlq:         dlq,
		topic:       topic,
		logger:      util.GetLogger(),
	}
}

// Start starts the worker
func (w *SagaWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting saga worker", zap.String("topic", w.topic))
	return w.consumer.StartConsuming(ctx, w.handle)
}

// Stop stops the worker
func (w *SagaWorker) Stop() error {
	return w.consumer.Close()
}

func (w *SagaWorker) handle(ctx context.Context, msg kafka.Message) error {
	env, err := event.DecodeEnvelope(msg.Value)
	if err != nil {
		w.dlq.Push(ctx, w.topic, msg.Value, err)
		return nil
	}

	switch env.EventType {
	case event.TypePaymentCompleted:
		err = w.guard.Execute(ctx, env, func(txCtx context.Context) error {
			return w.coordinator.OnPaymentCompleted(txCtx, env)
		})
	case event.TypePaymentFailed:
		err = w.guard.Execute(ctx, env, func(txCtx context.Context) error {
			return w.coordinator.OnPaymentFailed(txCtx, env)
		})
	default:
		return nil
	}

	if errors.Is(err, event.ErrDecode) {
		w.dlq.Push(ctx, w.topic, msg.Value, err)
		return nil
	}
	return err
}

// RankingWorker consumes product interaction and order events and feeds the
// aggregator. One worker per topic; run more instances in the same consumer
// group to parallelize across partitions while each partition stays
// sequential.
type RankingWorker struct {
	consumer   *broker.Consumer
	aggregator *ranking.Aggregator
	dlq        *broker.DeadLetter
	topic      string
	logger     *zap.Logger
}

func NewRankingWorker(
	consumer *broker.Consumer,
	aggregator *ranking.Aggregator,
	dlq *broker.DeadLetter,
	topic string,
) *RankingWorker {
	return &RankingWorker{
		consumer:   consumer,
		aggregator: aggregator,
		dlq:        dlq,
		topic:      topic,
		logger:     util.GetLogger(),
	}
}

// Start starts the ranking worker
func (w *RankingWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting ranking worker", zap.String("topic", w.topic))
	return w.consumer.StartConsuming(ctx, w.handle)
}

// Stop stops the ranking worker
func (w *RankingWorker) Stop() error {
	return w.consumer.Close()
}

func (w *RankingWorker) handle(ctx context.Context, msg kafka.Message) error {
	env, err := event.DecodeEnvelope(msg.Value)
	if err != nil {
		w.dlq.Push(ctx, w.topic, msg.Value, err)
		return nil
	}

	if err := w.aggregator.OnEvent(ctx, env); err != nil {
		if errors.Is(err, event.ErrDecode) {
			w.dlq.Push(ctx, w.topic, msg.Value, err)
			return nil
		}
		return err
	}
	return nil
}
