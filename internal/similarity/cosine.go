// Package similarity scores candidate vectors against a reference vector.
package similarity

import (
	"context"
	"fmt"
	"math"
)

// Scorer computes one similarity per candidate, in candidate order.
type Scorer interface {
	Name() string
	Score(ctx context.Context, reference []float64, candidates [][]float64) ([]float64, error)
}

// CosineScorer computes exact cosine similarity in float64.
type CosineScorer struct{}

// NewCosineScorer returns the default scorer.
func NewCosineScorer() *CosineScorer { return &CosineScorer{} }

func (CosineScorer) Name() string { return "cosine" }

func (CosineScorer) Score(ctx context.Context, reference []float64, candidates [][]float64) ([]float64, error) {
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := Cosine(reference, c)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		scores[i] = s
	}
	return scores, nil
}

// Cosine returns dot(a,b) / (|a|*|b|). A zero-magnitude vector on either
// side yields 0 rather than an error.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("similarity: dimension mismatch: %d vs %d", len(a), len(b))
	}
	var dot, na2, nb2 float64
	for i := range a {
		dot += a[i] * b[i]
		na2 += a[i] * a[i]
		nb2 += b[i] * b[i]
	}
	if na2 == 0 || nb2 == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na2) * math.Sqrt(nb2)), nil
}
