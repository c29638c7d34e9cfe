package store

import (
	"context"
	"fmt"
	"time"

	"commerce-backend/internal/dedup"

	"github.com/lib/pq"
)

// IsProcessed reports whether a consumer has already handled an event.
func (s *Store) IsProcessed(ctx context.Context, eventID, consumerID string) (bool, error) {
	var exists bool
	err := s.q(ctx).QueryRowxContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1 AND consumer_id = $2)",
		eventID, consumerID).Scan(&exists)
	return exists, err
}

// MarkProcessed records an event as handled by a consumer. It must run in
// the same unit of work as the effect it guards. A unique violation means a
// concurrent worker applied the event first; it surfaces as
// ErrAlreadyProcessed so the caller rolls this transaction back instead of
// committing the effect a second time.
func (s *Store) MarkProcessed(ctx context.Context, eventID, consumerID string) error {
	_, err := s.q(ctx).ExecContext(ctx,
		"INSERT INTO processed_events (event_id, consumer_id) VALUES ($1, $2)",
		eventID, consumerID)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return fmt.Errorf("event %s for consumer %s: %w", eventID, consumerID, dedup.ErrAlreadyProcessed)
	}
	return err
}

// PurgeProcessedBefore drops dedup records older than the retention cutoff.
// Retention only needs to exceed the transport's maximum redelivery delay.
func (s *Store) PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.q(ctx).ExecContext(ctx,
		"DELETE FROM processed_events WHERE processed_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
