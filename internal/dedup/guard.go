package dedup

import (
	"context"
	"errors"
	"fmt"

	"commerce-backend/internal/event"
	"commerce-backend/internal/util"

	"go.uber.org/zap"
)

// ErrAlreadyProcessed is returned by Store.MarkProcessed when another
// consumer instance recorded the event first. It must abort the unit of work
// carrying the duplicate apply; only the winner's commit may hold the effect.
var ErrAlreadyProcessed = errors.New("event already processed")

// Store records which (event id, consumer id) pairs have been applied.
// MarkProcessed must surface a concurrent duplicate insert as
// ErrAlreadyProcessed rather than swallowing it, so the guard can roll the
// losing transaction back.
type Store interface {
	IsProcessed(ctx context.Context, eventID, consumerID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, consumerID string) error
}

// TxRunner executes fn inside one unit of work. Both the plain store
// transaction and the transactional bus satisfy it, so guarded handlers may
// publish follow-up events.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Guard makes at-least-once delivery behave as effectively-once: the effect
// and the processed-record are written in the same unit of work, so a crash
// between them re-applies cleanly and a redelivery after commit is skipped.
type Guard struct {
	consumerID string
	store      Store
	runInTx    TxRunner
	logger     *zap.Logger
}

// NewGuard scopes deduplication to one consumer id. Independent consumers of
// the same stream (saga vs. ranking) each get their own guard and never
// share mutable state.
func NewGuard(consumerID string, store Store, runInTx TxRunner) *Guard {
	return &Guard{
		consumerID: consumerID,
		store:      store,
		runInTx:    runInTx,
		logger:     util.GetLogger(),
	}
}

// Execute applies the envelope's effect at most once for this consumer. A
// duplicate is acknowledged as success so the delivery can be committed.
func (g *Guard) Execute(ctx context.Context, env event.Envelope, apply func(ctx context.Context) error) error {
	processed, err := g.store.IsProcessed(ctx, env.EventID, g.consumerID)
	if err != nil {
		return fmt.Errorf("failed to check event %s: %w", env.EventID, err)
	}
	if processed {
		g.logger.Info("Event already processed, skipping",
			zap.String("event_id", env.EventID),
			zap.String("consumer", g.consumerID))
		util.EventsDedupedTotal.WithLabelValues(g.consumerID).Inc()
		return nil
	}

	err = g.runInTx(ctx, func(txCtx context.Context) error {
		if err := apply(txCtx); err != nil {
			return err
		}
		if err := g.store.MarkProcessed(txCtx, env.EventID, g.consumerID); err != nil {
			return fmt.Errorf("failed to mark event %s processed: %w", env.EventID, err)
		}
		return nil
	})
	if errors.Is(err, ErrAlreadyProcessed) {
		// Lost the race against a concurrent delivery (rebalance overlap).
		// The rollback discarded this apply; the winner's commit carries the
		// effect, so the duplicate is acknowledged.
		g.logger.Info("Concurrent duplicate delivery, discarding apply",
			zap.String("event_id", env.EventID),
			zap.String("consumer", g.consumerID))
		util.EventsDedupedTotal.WithLabelValues(g.consumerID).Inc()
		return nil
	}
	return err
}
