package ranking

import (
	"math"
	"sort"

	"commerce-backend/internal/models"
)

func pow05(x float64) float64 {
	return math.Pow(0.5, x)
}

// Rank orders scores descending and assigns dense ranks: equal scores share
// a rank and the next distinct score takes the following one. Ties are
// broken deterministically by ascending product id. Rank is a pure function
// of the score set, so two materializations over the same scores agree.
func Rank(rows []models.ProductScore) []models.RankedProduct {
	ranked := make([]models.RankedProduct, 0, len(rows))
	for _, row := range rows {
		score := row.HistScore + row.IncrScore
		if score < 0 {
			score = 0
		}
		ranked = append(ranked, models.RankedProduct{ProductID: row.ProductID, Score: score})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ProductID < ranked[j].ProductID
	})

	rank := 0
	prev := math.Inf(1)
	for i := range ranked {
		if ranked[i].Score != prev {
			rank++
			prev = ranked[i].Score
		}
		ranked[i].Rank = rank
	}
	return ranked
}
