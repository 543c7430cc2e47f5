// Package matcher ranks candidate documents against a reference text.
//
// Every call builds its own vocabulary and weighting from the reference and
// the candidates at hand; nothing is cached between calls.
package matcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"resume-matcher/internal/chromemdb"
	"resume-matcher/internal/config"
	"resume-matcher/internal/embedding"
	"resume-matcher/internal/helper"
	"resume-matcher/internal/models"
	"resume-matcher/internal/parser"
	"resume-matcher/internal/ranking"
	"resume-matcher/internal/similarity"
)

// History receives every successful ranking.
type History interface {
	Record(ctx context.Context, reference, scorer string, result *models.MatchResult) error
}

type Options struct {
	// TopK is used when Match is called with k <= 0.
	TopK int
	// Precision is the number of decimals scores are rounded to on output.
	// Negative keeps full precision.
	Precision int
	// MatchedTerms caps the shared terms attached to each ranked candidate.
	MatchedTerms int
	Embedding    embedding.Options
}

type Matcher struct {
	parser  *parser.Parser
	scorer  similarity.Scorer
	history History
	opts    Options
}

func New(p *parser.Parser, scorer similarity.Scorer, opts Options) *Matcher {
	if scorer == nil {
		scorer = similarity.NewCosineScorer()
	}
	if opts.TopK <= 0 {
		opts.TopK = models.DefaultTopK
	}
	return &Matcher{parser: p, scorer: scorer, opts: opts}
}

// WithHistory makes the matcher record each result in h.
func (m *Matcher) WithHistory(h History) *Matcher {
	m.history = h
	return m
}

// FromConfig builds a matcher from the matcher section of cfg.
func FromConfig(cfg *config.Config) (*Matcher, error) {
	scorer, err := NewScorer(cfg.Matcher.Scorer)
	if err != nil {
		return nil, err
	}
	p := parser.New(parser.Options{
		Workers:      cfg.Matcher.Workers,
		TextEncoding: cfg.Matcher.TextEncoding,
	})
	return New(p, scorer, Options{
		TopK:         cfg.Matcher.TopK,
		Precision:    cfg.Matcher.Precision,
		MatchedTerms: cfg.Matcher.MatchedTerms,
		Embedding: embedding.Options{
			Stopwords:   cfg.Matcher.Stopwords,
			SublinearTF: cfg.Matcher.SublinearTF,
		},
	}), nil
}

// NewScorer returns the scorer registered under name.
func NewScorer(name string) (similarity.Scorer, error) {
	switch name {
	case "", "cosine":
		return similarity.NewCosineScorer(), nil
	case "chromem":
		return chromemdb.NewScorer(), nil
	default:
		return nil, fmt.Errorf("unknown scorer %q", name)
	}
}

// ValidateRequest rejects a blank reference or an empty candidate list with
// models.ErrMissingInput.
func ValidateRequest(reference string, candidates []models.Document) error {
	if strings.TrimSpace(reference) == "" || len(candidates) == 0 {
		return models.ErrMissingInput
	}
	return nil
}

// Match extracts every candidate, scores it against reference and returns the
// best k, best first. k <= 0 uses the configured TopK.
//
// An empty candidate list fails with models.ErrMissingInput. A corpus without
// a single term fails with models.ErrEmptyCorpus. Candidates that cannot be
// read are scored as empty documents and reported in Warnings.
func (m *Matcher) Match(ctx context.Context, reference string, candidates []models.Document, k int) (*models.MatchResult, error) {
	if len(candidates) == 0 {
		return nil, models.ErrMissingInput
	}
	if k <= 0 {
		k = m.opts.TopK
	}
	start := time.Now()

	extracted, err := m.parser.ExtractAll(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("extracting candidates: %w", err)
	}
	texts := make([]string, len(extracted))
	var warnings []models.ExtractionWarning
	for i, e := range extracted {
		texts[i] = e.Text
		if e.Warning != "" {
			warnings = append(warnings, models.ExtractionWarning{DocumentID: e.DocumentID, Message: e.Warning})
		}
	}

	space, err := embedding.Build(reference, texts, m.opts.Embedding)
	if err != nil {
		return nil, err
	}
	log.Debug().Stringer("space", space).Msg("Built vector space")

	scores, err := m.scorer.Score(ctx, space.Reference(), space.Candidates())
	if err != nil {
		return nil, fmt.Errorf("scoring candidates with %s: %w", m.scorer.Name(), err)
	}

	scored := make([]models.ScoredCandidate, len(candidates))
	for i, doc := range candidates {
		scored[i] = models.ScoredCandidate{
			ID:    doc.ID,
			Score: scores[i],
			Terms: space.SharedTerms(i, m.opts.MatchedTerms),
		}
	}
	ranked := ranking.Rank(scored, k)

	runID, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	result := &models.MatchResult{
		RunID:          runID,
		Ranked:         ranking.Round(ranked, m.opts.Precision),
		Warnings:       warnings,
		CandidateCount: len(candidates),
		VocabularySize: space.Model.Dimension(),
		Duration:       time.Since(start),
	}

	log.Info().
		Str("run_id", result.RunID).
		Int("candidates", result.CandidateCount).
		Int("vocabulary", result.VocabularySize).
		Int("warnings", len(warnings)).
		Dur("duration", result.Duration).
		Msg("Ranked candidates")

	if m.history != nil {
		if err := m.history.Record(ctx, reference, m.scorer.Name(), result); err != nil {
			log.Error().Err(err).Str("run_id", result.RunID).Msg("Error recording match history")
		}
	}
	return result, nil
}
