package store

import (
	"context"
	"fmt"

	"commerce-backend/internal/event"
	"commerce-backend/internal/models"

	"github.com/jmoiron/sqlx"
)

// AppendOutbox stages committed-to-be envelopes for cross-service
// forwarding. It joins the publishing unit of work, so a rollback of the
// business transaction also drops the staged envelopes.
func (s *Store) AppendOutbox(ctx context.Context, topic string, envs []event.Envelope) error {
	for _, env := range envs {
		payload, err := env.Encode()
		if err != nil {
			return err
		}
		_, err = s.q(ctx).ExecContext(ctx, `
			INSERT INTO outbox (event_id, event_type, aggregate_id, topic, payload, occurred_at, published)
			VALUES ($1, $2, $3, $4, $5, $6, FALSE)`,
			env.EventID, env.EventType, env.AggregateID, topic, payload, env.OccurredAt)
		if err != nil {
			return fmt.Errorf("failed to append event %s to outbox: %w", env.EventID, err)
		}
	}
	return nil
}

// ProcessOutboxBatch fetches the oldest unpublished records in enqueue
// order, hands them to publish, and marks them published, all in one
// transaction. A publish error rolls the batch back, so nothing is marked
// published that the channel did not durably accept. The plain FOR UPDATE
// makes a second relay instance wait for the in-flight batch instead of
// skipping ahead of it, which would invert per-aggregate order on the
// channel.
func (s *Store) ProcessOutboxBatch(
	ctx context.Context,
	batchSize int,
	publish func(ctx context.Context, records []models.OutboxRecord) error,
) error {
	return s.RunInTx(ctx, func(txCtx context.Context) error {
		var records []models.OutboxRecord
		err := sqlx.SelectContext(txCtx, s.q(txCtx), &records, `
			SELECT * FROM outbox
			WHERE published = FALSE
			ORDER BY id
			LIMIT $1
			FOR UPDATE`, batchSize)
		if err != nil {
			return fmt.Errorf("failed to fetch outbox batch: %w", err)
		}
		if len(records) == 0 {
			return nil
		}

		if err := publish(txCtx, records); err != nil {
			return err
		}

		ids := make([]int64, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		query, args, err := sqlx.In("UPDATE outbox SET published = TRUE WHERE id IN (?)", ids)
		if err != nil {
			return err
		}
		query = s.db.Rebind(query)
		if _, err := s.q(txCtx).ExecContext(txCtx, query, args...); err != nil {
			return fmt.Errorf("failed to mark outbox batch published: %w", err)
		}
		return nil
	})
}
