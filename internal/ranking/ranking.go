// Package ranking orders scored candidates and prepares them for display.
package ranking

import (
	"math"
	"sort"

	"resume-matcher/internal/models"
)

// Rank orders candidates by descending score and keeps the first k. Equal
// scores keep their submission order. A non-positive k means
// models.DefaultTopK. Fewer than k candidates are returned as-is, never padded.
// The input slice is left untouched.
func Rank(candidates []models.ScoredCandidate, k int) []models.ScoredCandidate {
	if k <= 0 {
		k = models.DefaultTopK
	}
	ranked := make([]models.ScoredCandidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Score > ranked[b].Score
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// Round rounds every score to the given number of decimal places, half away
// from zero. A negative precision leaves scores untouched. Ordering is not
// revisited, so candidates that round to the same value keep their rank.
func Round(results []models.ScoredCandidate, precision int) []models.ScoredCandidate {
	out := make([]models.ScoredCandidate, len(results))
	copy(out, results)
	if precision < 0 {
		return out
	}
	p := math.Pow(10, float64(precision))
	for i := range out {
		out[i].Score = math.Round(out[i].Score*p) / p
	}
	return out
}
