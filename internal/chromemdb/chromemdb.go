package chromemdb

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
)

const collectionName = "candidates"

// VectorDBManager encapsulates an in-memory chromem-go database that lives for
// a single ranking request.
type VectorDBManager struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewVectorDBManager creates a fresh in-memory database with one collection.
func NewVectorDBManager(name string) (*VectorDBManager, error) {
	db := chromem.NewDB()
	c, err := db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	return &VectorDBManager{db: db, collection: c}, nil
}

// CreateDocs adds documents with precomputed embeddings.
func (m *VectorDBManager) CreateDocs(ctx context.Context, documents []chromem.Document) error {
	if err := m.collection.AddDocuments(ctx, documents, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// SearchWithQueryOptions performs a similarity search over the collection.
func (m *VectorDBManager) SearchWithQueryOptions(ctx context.Context, opts chromem.QueryOptions) ([]chromem.Result, error) {
	if opts.QueryText == "" && opts.QueryEmbedding == nil {
		return nil, fmt.Errorf("either query or embedding must be provided")
	}
	// chromem-go requires nResults <= collection size.
	if count := m.collection.Count(); opts.NResults > count {
		opts.NResults = count
	}
	results, err := m.collection.QueryWithOptions(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	return results, nil
}

// Scorer computes cosine similarity through a per-request chromem-go
// collection. Similarities come back as float32, so scores may differ from
// the exact scorer in the last few digits.
type Scorer struct{}

// NewScorer returns a chromem-backed scorer.
func NewScorer() *Scorer { return &Scorer{} }

func (s *Scorer) Name() string { return "chromem" }

func (s *Scorer) Score(ctx context.Context, reference []float64, candidates [][]float64) ([]float64, error) {
	scores := make([]float64, len(candidates))
	// chromem cannot normalize a zero vector; zero vectors score 0 by definition.
	if isZero(reference) {
		return scores, nil
	}

	docs := make([]chromem.Document, 0, len(candidates))
	for i, c := range candidates {
		if len(c) != len(reference) {
			return nil, fmt.Errorf("candidate %d: dimension mismatch: %d vs %d", i, len(c), len(reference))
		}
		if isZero(c) {
			continue
		}
		id := strconv.Itoa(i)
		docs = append(docs, chromem.Document{ID: id, Content: id, Embedding: toFloat32(c)})
	}
	if len(docs) == 0 {
		return scores, nil
	}

	m, err := NewVectorDBManager(collectionName)
	if err != nil {
		return nil, err
	}
	if err := m.CreateDocs(ctx, docs); err != nil {
		return nil, err
	}
	results, err := m.SearchWithQueryOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: toFloat32(reference),
		NResults:       len(docs),
	})
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		i, err := strconv.Atoi(r.ID)
		if err != nil || i < 0 || i >= len(scores) {
			return nil, fmt.Errorf("unexpected document id %q in chromem results", r.ID)
		}
		scores[i] = clamp(float64(r.Similarity))
	}
	log.Debug().Int("documents", len(docs)).Int("results", len(results)).Msg("Scored candidates with chromem")
	return scores, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func isZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func clamp(x float64) float64 {
	switch {
	case x > 1:
		return 1
	case x < -1:
		return -1
	}
	return x
}
