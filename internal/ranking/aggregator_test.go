package ranking

import (
	"context"
	"sync"
	"testing"
	"time"

	"commerce-backend/internal/event"
	"commerce-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memScoreStore struct {
	mu     sync.Mutex
	hist   map[int64]float64
	incr   map[int64]float64
	folded int
}

func newMemScoreStore() *memScoreStore {
	return &memScoreStore{hist: make(map[int64]float64), incr: make(map[int64]float64)}
}

func (m *memScoreStore) ApplyScoreDelta(ctx context.Context, productID int64, delta float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incr[productID] += delta
	return nil
}

func (m *memScoreStore) FoldAndDecayScores(ctx context.Context, halfLifeSeconds float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folded++
	for id := range m.incr {
		// decay factor 1: tests fold immediately after the deltas land
		next := m.hist[id] + m.incr[id]
		if next < 0 {
			next = 0
		}
		m.hist[id] = next
		m.incr[id] = 0
	}
	return nil
}

func (m *memScoreStore) ListScores(ctx context.Context) ([]models.ProductScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ProductScore, 0, len(m.hist))
	for id, hist := range m.hist {
		out = append(out, models.ProductScore{ProductID: id, HistScore: hist, IncrScore: m.incr[id]})
	}
	return out, nil
}

// memSnapshotStore records every published snapshot whole, so tests can
// assert the leaderboard is swapped in one write.
type memSnapshotStore struct {
	mu        sync.Mutex
	current   []models.RankedProduct
	published int
}

func (m *memSnapshotStore) PublishSnapshot(ctx context.Context, ranked []models.RankedProduct) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = ranked
	m.published++
	return nil
}

func (m *memSnapshotStore) GetSnapshot(ctx context.Context) ([]models.RankedProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, nil
}

// memGuard dedupes by event id, like the real guard over the processed table.
type memGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemGuard() *memGuard {
	return &memGuard{seen: make(map[string]bool)}
}

func (g *memGuard) Execute(ctx context.Context, env event.Envelope, apply func(ctx context.Context) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen[env.EventID] {
		return nil
	}
	if err := apply(ctx); err != nil {
		return err
	}
	g.seen[env.EventID] = true
	return nil
}

func testPolicy() Policy {
	return Policy{LikeWeight: 3, ViewWeight: 1, BrowseWeight: 0.2, PurchaseWeight: 10, HalfLife: 24 * time.Hour}
}

func newTestAggregator(t *testing.T) (*Aggregator, *memScoreStore, *memSnapshotStore) {
	t.Helper()
	scores := newMemScoreStore()
	snapshots := &memSnapshotStore{}
	agg, err := NewAggregator(testPolicy(), scores, snapshots, newMemGuard())
	require.NoError(t, err)
	return agg, scores, snapshots
}

func productEnv(t *testing.T, eventType string, productID int64) event.Envelope {
	t.Helper()
	env, err := event.New(eventType, "prod", event.ProductLikedPayload{ProductID: productID, MemberID: 1})
	require.NoError(t, err)
	return env
}

func TestNewAggregatorRejectsInvalidPolicy(t *testing.T) {
	_, err := NewAggregator(Policy{}, newMemScoreStore(), &memSnapshotStore{}, newMemGuard())
	assert.Error(t, err)
}

func TestOnEventAppliesWeightedDeltas(t *testing.T) {
	agg, scores, _ := newTestAggregator(t)
	ctx := context.Background()

	require.NoError(t, agg.OnEvent(ctx, productEnv(t, event.TypeProductLiked, 1)))
	require.NoError(t, agg.OnEvent(ctx, productEnv(t, event.TypeProductViewed, 1)))
	require.NoError(t, agg.OnEvent(ctx, productEnv(t, event.TypeProductListBrowsed, 2)))

	assert.InDelta(t, 4.0, scores.incr[1], 1e-9)
	assert.InDelta(t, 0.2, scores.incr[2], 1e-9)
}

func TestLikeUnlikeWithDuplicateNetsOneLike(t *testing.T) {
	agg, scores, _ := newTestAggregator(t)
	ctx := context.Background()

	first := productEnv(t, event.TypeProductLiked, 1)
	second := productEnv(t, event.TypeProductLiked, 1)
	unlike := productEnv(t, event.TypeProductUnliked, 1)

	require.NoError(t, agg.OnEvent(ctx, first))
	require.NoError(t, agg.OnEvent(ctx, second))
	require.NoError(t, agg.OnEvent(ctx, second), "redelivered duplicate must not double-count")
	require.NoError(t, agg.OnEvent(ctx, unlike))

	assert.InDelta(t, testPolicy().LikeWeight, scores.incr[1], 1e-9)
}

func TestOrderCreatedAppliesPurchaseWeightPerProduct(t *testing.T) {
	agg, scores, _ := newTestAggregator(t)

	env, err := event.New(event.TypeOrderCreated, "1", event.OrderCreatedPayload{
		OrderID:    1,
		MemberID:   42,
		Amount:     5000,
		ProductIDs: []int64{10, 11},
	})
	require.NoError(t, err)
	require.NoError(t, agg.OnEvent(context.Background(), env))

	assert.InDelta(t, testPolicy().PurchaseWeight, scores.incr[10], 1e-9)
	assert.InDelta(t, testPolicy().PurchaseWeight, scores.incr[11], 1e-9)
}

func TestOnEventIgnoresUnscoredTypes(t *testing.T) {
	agg, scores, _ := newTestAggregator(t)

	env, err := event.New(event.TypePaymentCompleted, "1",
		event.PaymentCompletedPayload{PaymentID: 1, OrderID: 1, Amount: 100})
	require.NoError(t, err)
	require.NoError(t, agg.OnEvent(context.Background(), env))

	assert.Empty(t, scores.incr)
}

func TestMaterializePublishesWholeSnapshot(t *testing.T) {
	agg, _, snapshots := newTestAggregator(t)
	ctx := context.Background()

	require.NoError(t, agg.OnEvent(ctx, productEnv(t, event.TypeProductLiked, 1)))
	require.NoError(t, agg.OnEvent(ctx, productEnv(t, event.TypeProductViewed, 2)))
	require.NoError(t, agg.OnEvent(ctx, productEnv(t, event.TypeProductViewed, 2)))

	require.NoError(t, agg.Materialize(ctx))

	assert.Equal(t, 1, snapshots.published, "the leaderboard must be replaced in one write")
	got, err := agg.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.RankedProduct{
		{ProductID: 1, Score: 3, Rank: 1},
		{ProductID: 2, Score: 2, Rank: 2},
	}, got)
}

func TestMaterializeIsRepeatable(t *testing.T) {
	agg, scores, snapshots := newTestAggregator(t)
	ctx := context.Background()

	require.NoError(t, agg.OnEvent(ctx, productEnv(t, event.TypeProductLiked, 1)))
	require.NoError(t, agg.Materialize(ctx))
	first, err := agg.Snapshot(ctx)
	require.NoError(t, err)

	// Nothing new arrived: a second materialization folds an empty period and
	// publishes the same leaderboard.
	require.NoError(t, agg.Materialize(ctx))
	second, err := agg.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, scores.folded)
	assert.Equal(t, 2, snapshots.published)
}
