package ranking

import (
	"context"
	"fmt"
	"time"

	"commerce-backend/internal/event"
	"commerce-backend/internal/models"
	"commerce-backend/internal/util"

	"go.uber.org/zap"
)

// Policy holds the weight and decay parameters. They are configuration, not
// structure: tests assert monotonic decay and the zero floor, not specific
// constants.
type Policy struct {
	LikeWeight     float64
	ViewWeight     float64
	BrowseWeight   float64
	PurchaseWeight float64
	HalfLife       time.Duration
}

// Validate rejects parameter sets the score invariants cannot hold under.
func (p Policy) Validate() error {
	if p.HalfLife <= 0 {
		return fmt.Errorf("half-life must be positive, got %s", p.HalfLife)
	}
	if p.LikeWeight < 0 || p.ViewWeight < 0 || p.BrowseWeight < 0 || p.PurchaseWeight < 0 {
		return fmt.Errorf("weights must be non-negative")
	}
	return nil
}

// DecayFactor is the exponential half-life decay applied to the historical
// score component: monotonically non-increasing in elapsed time, 1 at zero.
func (p Policy) DecayFactor(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 1
	}
	return pow05(elapsed.Seconds() / p.HalfLife.Seconds())
}

// ScoreStore is the aggregator's side of the score persistence.
type ScoreStore interface {
	ApplyScoreDelta(ctx context.Context, productID int64, delta float64) error
	FoldAndDecayScores(ctx context.Context, halfLifeSeconds float64) error
	ListScores(ctx context.Context) ([]models.ProductScore, error)
}

// SnapshotStore is the ranking read side: the published snapshot is replaced
// whole, never cell by cell.
type SnapshotStore interface {
	PublishSnapshot(ctx context.Context, ranked []models.RankedProduct) error
	GetSnapshot(ctx context.Context) ([]models.RankedProduct, error)
}

// Guard applies an envelope's effect at most once for this consumer.
type Guard interface {
	Execute(ctx context.Context, env event.Envelope, apply func(ctx context.Context) error) error
}

type scoreDelta struct {
	productID int64
	delta     float64
}

// Aggregator maintains per-product interaction scores from the event stream
// and materializes the leaderboard. Deltas are commutative, so concurrent
// application across products or even for the same product needs no ordering
// lock; the guard makes each delta count exactly once.
type Aggregator struct {
	policy    Policy
	scores    ScoreStore
	snapshots SnapshotStore
	guard     Guard
	logger    *zap.Logger
}

func NewAggregator(policy Policy, scores ScoreStore, snapshots SnapshotStore, guard Guard) (*Aggregator, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ranking policy: %w", err)
	}
	return &Aggregator{
		policy:    policy,
		scores:    scores,
		snapshots: snapshots,
		guard:     guard,
		logger:    util.GetLogger(),
	}, nil
}

// OnEvent applies the envelope's weight deltas under the dedup guard. Event
// types the aggregator does not score are acknowledged untouched.
func (a *Aggregator) OnEvent(ctx context.Context, env event.Envelope) error {
	deltas, err := a.deltasFor(env)
	if err != nil {
		return err
	}
	if len(deltas) == 0 {
		return nil
	}

	return a.guard.Execute(ctx, env, func(txCtx context.Context) error {
		for _, d := range deltas {
			if err := a.scores.ApplyScoreDelta(txCtx, d.productID, d.delta); err != nil {
				return err
			}
			util.ScoreDeltasAppliedTotal.WithLabelValues(env.EventType).Inc()
		}
		return nil
	})
}

func (a *Aggregator) deltasFor(env event.Envelope) ([]scoreDelta, error) {
	switch env.EventType {
	case event.TypeProductLiked:
		var p event.ProductLikedPayload
		if err := env.DecodePayload(&p); err != nil {
			return nil, err
		}
		return []scoreDelta{{p.ProductID, a.policy.LikeWeight}}, nil

	case event.TypeProductUnliked:
		var p event.ProductUnlikedPayload
		if err := env.DecodePayload(&p); err != nil {
			return nil, err
		}
		return []scoreDelta{{p.ProductID, -a.policy.LikeWeight}}, nil

	case event.TypeProductViewed:
		var p event.ProductViewedPayload
		if err := env.DecodePayload(&p); err != nil {
			return nil, err
		}
		return []scoreDelta{{p.ProductID, a.policy.ViewWeight}}, nil

	case event.TypeProductListBrowsed:
		var p event.ProductListBrowsedPayload
		if err := env.DecodePayload(&p); err != nil {
			return nil, err
		}
		return []scoreDelta{{p.ProductID, a.policy.BrowseWeight}}, nil

	case event.TypeOrderCreated:
		var p event.OrderCreatedPayload
		if err := env.DecodePayload(&p); err != nil {
			return nil, err
		}
		deltas := make([]scoreDelta, 0, len(p.ProductIDs))
		for _, id := range p.ProductIDs {
			deltas = append(deltas, scoreDelta{id, a.policy.PurchaseWeight})
		}
		return deltas, nil
	}
	return nil, nil
}

// Materialize is the periodic sync point: fold the current period into the
// decayed history, rank everything, and swap the published snapshot in one
// write. Readers never observe a half-updated leaderboard.
func (a *Aggregator) Materialize(ctx context.Context) error {
	start := time.Now()

	if err := a.scores.FoldAndDecayScores(ctx, a.policy.HalfLife.Seconds()); err != nil {
		return fmt.Errorf("failed to fold scores: %w", err)
	}

	rows, err := a.scores.ListScores(ctx)
	if err != nil {
		return fmt.Errorf("failed to list scores: %w", err)
	}

	ranked := Rank(rows)
	if err := a.snapshots.PublishSnapshot(ctx, ranked); err != nil {
		return fmt.Errorf("failed to publish ranking snapshot: %w", err)
	}

	util.RankingMaterializeLatency.Observe(time.Since(start).Seconds())
	a.logger.Info("Ranking snapshot materialized",
		zap.Int("products", len(ranked)),
		zap.Duration("took", time.Since(start)))
	return nil
}

// Snapshot returns the last published leaderboard.
func (a *Aggregator) Snapshot(ctx context.Context) ([]models.RankedProduct, error) {
	return a.snapshots.GetSnapshot(ctx)
}
