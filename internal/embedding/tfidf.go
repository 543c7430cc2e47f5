package embedding

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"resume-matcher/internal/models"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]{2,}`)

// Options controls tokenization and term weighting.
type Options struct {
	// Stopwords drops common English function words before counting.
	Stopwords bool
	// SublinearTF replaces a raw term count c with 1 + ln(c).
	SublinearTF bool
}

// Model is the vocabulary and IDF weighting fitted on one corpus.
type Model struct {
	vocabulary map[string]int
	terms      []string
	idf        []float64
	opts       Options
}

// Space holds one L2-normalized TF-IDF row per corpus entry. Row 0 is the
// reference; row i+1 is candidate i.
type Space struct {
	Model *Model
	Rows  [][]float64
}

// Build fits a model on [reference, candidates...] and projects every text
// into the shared space. It returns models.ErrEmptyCorpus when no text
// contains a single term.
func Build(reference string, candidates []string, opts Options) (*Space, error) {
	corpus := make([]string, 0, len(candidates)+1)
	corpus = append(corpus, reference)
	corpus = append(corpus, candidates...)

	counts := make([]map[string]int, len(corpus))
	for i, text := range corpus {
		counts[i] = termCounts(Tokenize(text, opts))
	}
	model, err := fit(counts, opts)
	if err != nil {
		return nil, err
	}

	rows := make([][]float64, len(corpus))
	for i := range counts {
		rows[i] = model.weigh(counts[i])
	}
	return &Space{Model: model, Rows: rows}, nil
}

func fit(counts []map[string]int, opts Options) (*Model, error) {
	df := make(map[string]int)
	for _, c := range counts {
		for term := range c {
			df[term]++
		}
	}
	if len(df) == 0 {
		return nil, models.ErrEmptyCorpus
	}

	// Stable column order
	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	m := &Model{
		vocabulary: make(map[string]int, len(terms)),
		terms:      terms,
		idf:        make([]float64, len(terms)),
		opts:       opts,
	}
	n := float64(len(counts))
	for i, term := range terms {
		m.vocabulary[term] = i
		// Smoothed IDF
		m.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	return m, nil
}

// Dimension returns the vocabulary size.
func (m *Model) Dimension() int { return len(m.terms) }

func (m *Model) idfOf(term string) (float64, bool) {
	idx, ok := m.vocabulary[term]
	if !ok {
		return 0, false
	}
	return m.idf[idx], true
}

func (m *Model) weigh(counts map[string]int) []float64 {
	vec := make([]float64, len(m.terms))
	for term, c := range counts {
		idx, ok := m.vocabulary[term]
		if !ok {
			continue
		}
		tf := float64(c)
		if m.opts.SublinearTF {
			tf = 1 + math.Log(tf)
		}
		vec[idx] = tf * m.idf[idx]
	}
	normalize(vec)
	return vec
}

// Reference returns the reference row.
func (s *Space) Reference() []float64 { return s.Rows[0] }

// Candidates returns the candidate rows in submission order.
func (s *Space) Candidates() [][]float64 { return s.Rows[1:] }

// SharedTerms returns up to n terms present in both the reference and
// candidate i, ordered by their contribution to the dot product.
func (s *Space) SharedTerms(i, n int) []string {
	if i < 0 || i+1 >= len(s.Rows) || n <= 0 {
		return nil
	}
	ref, cand := s.Rows[0], s.Rows[i+1]

	type contribution struct {
		term  string
		value float64
	}
	var shared []contribution
	for j := range ref {
		if v := ref[j] * cand[j]; v > 0 {
			shared = append(shared, contribution{term: s.Model.terms[j], value: v})
		}
	}
	sort.SliceStable(shared, func(a, b int) bool { return shared[a].value > shared[b].value })
	if len(shared) > n {
		shared = shared[:n]
	}
	out := make([]string, len(shared))
	for k, c := range shared {
		out[k] = c.term
	}
	return out
}

// String summarizes the space for debug logging.
func (s *Space) String() string {
	return fmt.Sprintf("tfidf space: %d rows x %d terms", len(s.Rows), s.Model.Dimension())
}

// Tokenize lowercases text and returns its word tokens of two or more
// characters, with stopwords removed when opts.Stopwords is set.
func Tokenize(text string, opts Options) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(raw) == 0 {
		return nil
	}
	if !opts.Stopwords {
		return raw
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func termCounts(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}

// normalize scales vec to unit L2 length in place; the zero vector is left alone.
func normalize(vec []float64) {
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return
	}
	for i := range vec {
		vec[i] /= norm
	}
}
