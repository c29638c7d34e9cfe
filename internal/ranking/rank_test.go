package ranking

import (
	"testing"
	"time"

	"commerce-backend/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestRankOrdersByScoreDescending(t *testing.T) {
	ranked := Rank([]models.ProductScore{
		{ProductID: 1, HistScore: 2, IncrScore: 1},
		{ProductID: 2, HistScore: 10, IncrScore: 0},
		{ProductID: 3, HistScore: 0, IncrScore: 5},
	})

	assert.Equal(t, []models.RankedProduct{
		{ProductID: 2, Score: 10, Rank: 1},
		{ProductID: 3, Score: 5, Rank: 2},
		{ProductID: 1, Score: 3, Rank: 3},
	}, ranked)
}

func TestRankAssignsDenseRanksOnTies(t *testing.T) {
	ranked := Rank([]models.ProductScore{
		{ProductID: 7, HistScore: 5},
		{ProductID: 3, HistScore: 5},
		{ProductID: 9, HistScore: 1},
		{ProductID: 8, HistScore: 5},
	})

	// Tied scores share a rank, ordered by ascending product id; the next
	// distinct score takes the following rank, with no gaps.
	assert.Equal(t, []models.RankedProduct{
		{ProductID: 3, Score: 5, Rank: 1},
		{ProductID: 7, Score: 5, Rank: 1},
		{ProductID: 8, Score: 5, Rank: 1},
		{ProductID: 9, Score: 1, Rank: 2},
	}, ranked)
}

func TestRankFloorsNegativeScoresAtZero(t *testing.T) {
	ranked := Rank([]models.ProductScore{
		{ProductID: 1, HistScore: 2, IncrScore: -5},
		{ProductID: 2, HistScore: 1, IncrScore: 0},
	})

	assert.Equal(t, float64(0), ranked[1].Score)
	assert.Equal(t, int64(1), ranked[1].ProductID)
	assert.Equal(t, float64(1), ranked[0].Score)
}

func TestRankEmptyInput(t *testing.T) {
	assert.Empty(t, Rank(nil))
}

func TestPolicyValidate(t *testing.T) {
	valid := Policy{LikeWeight: 3, ViewWeight: 1, BrowseWeight: 0.2, PurchaseWeight: 10, HalfLife: 24 * time.Hour}
	assert.NoError(t, valid.Validate())

	noHalfLife := valid
	noHalfLife.HalfLife = 0
	assert.Error(t, noHalfLife.Validate())

	negativeWeight := valid
	negativeWeight.ViewWeight = -1
	assert.Error(t, negativeWeight.Validate())
}

func TestDecayFactorHalvesPerHalfLife(t *testing.T) {
	p := Policy{HalfLife: 24 * time.Hour}

	assert.Equal(t, float64(1), p.DecayFactor(0))
	assert.InDelta(t, 0.5, p.DecayFactor(24*time.Hour), 1e-9)
	assert.InDelta(t, 0.25, p.DecayFactor(48*time.Hour), 1e-9)
}

func TestDecayFactorIsMonotonicallyNonIncreasing(t *testing.T) {
	p := Policy{HalfLife: time.Hour}

	prev := p.DecayFactor(0)
	for elapsed := time.Minute; elapsed <= 6*time.Hour; elapsed += 17 * time.Minute {
		cur := p.DecayFactor(elapsed)
		assert.LessOrEqual(t, cur, prev, "decay must never increase a score, elapsed=%s", elapsed)
		assert.Greater(t, cur, float64(0))
		prev = cur
	}
}
