package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"commerce-backend/internal/models"
	"commerce-backend/internal/util"

	"go.uber.org/zap"
)

// Store hands batches of unpublished records to a publish function inside a
// transaction; a publish error rolls the batch back.
type Store interface {
	ProcessOutboxBatch(
		ctx context.Context,
		batchSize int,
		publish func(ctx context.Context, records []models.OutboxRecord) error,
	) error
}

// Publisher is the cross-service channel send side.
type Publisher interface {
	Publish(ctx context.Context, topic, aggregateID string, value []byte) error
}

// Relay polls the outbox and forwards committed envelopes to the
// cross-service channel. Forwarding is the post-commit leg of publishing:
// only rows whose business transaction committed ever appear in the outbox,
// and batch order follows enqueue order, so per-aggregate ordering carries
// through to the channel.
type Relay struct {
	store     Store
	publisher Publisher
	batchSize int
	interval  time.Duration
	logger    *zap.Logger
	wg        sync.WaitGroup
	quit      chan struct{}
}

// NewRelay creates a relay. A second instance against the same outbox blocks
// on the in-flight batch's row locks, so forwarding stays in enqueue order.
func NewRelay(store Store, publisher Publisher, batchSize int, interval time.Duration) *Relay {
	return &Relay{
		store:     store,
		publisher: publisher,
		batchSize: batchSize,
		interval:  interval,
		logger:    util.GetLogger(),
		quit:      make(chan struct{}),
	}
}

// Start begins polling in a background goroutine.
func (r *Relay) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.logger.Info("Outbox relay started", zap.Duration("interval", r.interval))

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := r.processBatch(ctx); err != nil {
					r.logger.Error("Failed to process outbox batch", zap.Error(err))
				}
			case <-r.quit:
				r.logger.Info("Outbox relay shutting down")
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (r *Relay) processBatch(ctx context.Context) error {
	return r.store.ProcessOutboxBatch(ctx, r.batchSize, func(ctx context.Context, records []models.OutboxRecord) error {
		for _, rec := range records {
			if err := r.publisher.Publish(ctx, rec.Topic, rec.AggregateID, rec.Payload); err != nil {
				return fmt.Errorf("failed to forward event %s: %w", rec.EventID, err)
			}
			util.EventsForwardedTotal.WithLabelValues(rec.Topic).Inc()
		}
		return nil
	})
}

// Stop gracefully stops the relay.
func (r *Relay) Stop() {
	close(r.quit)
	r.wg.Wait()
}
