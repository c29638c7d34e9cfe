package store

import (
	"context"
	"fmt"

	"commerce-backend/internal/models"

	"github.com/jmoiron/sqlx"
)

// ApplyScoreDelta adds a weight delta to a product's current-period score.
// Deltas are commutative, so concurrent appliers for different events of the
// same product never need an ordering lock; exactly-once application is the
// dedup guard's job.
func (s *Store) ApplyScoreDelta(ctx context.Context, productID int64, delta float64) error {
	query := `
		INSERT INTO product_scores (product_id, hist_score, incr_score, last_decay_at)
		VALUES ($1, 0, $2, NOW())
		ON CONFLICT (product_id)
		DO UPDATE SET incr_score = product_scores.incr_score + EXCLUDED.incr_score,
		              updated_at = NOW()`

	if _, err := s.q(ctx).ExecContext(ctx, query, productID, delta); err != nil {
		return fmt.Errorf("failed to apply score delta for product %d: %w", productID, err)
	}
	return nil
}

// FoldAndDecayScores folds each product's incremental component into its
// decayed history in a single statement. This is the periodic rebuild, the
// only place a stored score moves other than by delta. The decay is
// exponential with the given half-life; the fold floors at zero.
func (s *Store) FoldAndDecayScores(ctx context.Context, halfLifeSeconds float64) error {
	query := `
		UPDATE product_scores
		SET hist_score = GREATEST(0,
		        hist_score * power(0.5, GREATEST(extract(epoch FROM (NOW() - last_decay_at)), 0) / $1)
		        + incr_score),
		    incr_score = 0,
		    last_decay_at = NOW(),
		    updated_at = NOW()`

	if _, err := s.q(ctx).ExecContext(ctx, query, halfLifeSeconds); err != nil {
		return fmt.Errorf("failed to fold product scores: %w", err)
	}
	return nil
}

// ListScores returns every product's score row.
func (s *Store) ListScores(ctx context.Context) ([]models.ProductScore, error) {
	var scores []models.ProductScore
	err := sqlx.SelectContext(ctx, s.q(ctx), &scores,
		"SELECT * FROM product_scores ORDER BY product_id")
	return scores, err
}
