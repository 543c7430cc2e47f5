package models

import "time"

// DefaultTopK is the number of candidates returned when none is requested.
const DefaultTopK = 3

// ScoredCandidate is a candidate identifier with its similarity to the reference.
type ScoredCandidate struct {
	ID    string   `json:"id"`
	Score float64  `json:"score"`
	Terms []string `json:"terms,omitempty"`
}

// MatchResult is the outcome of one ranking request.
type MatchResult struct {
	RunID          string              `json:"run_id"`
	Ranked         []ScoredCandidate   `json:"ranked"`
	Warnings       []ExtractionWarning `json:"warnings,omitempty"`
	CandidateCount int                 `json:"candidate_count"`
	VocabularySize int                 `json:"vocabulary_size"`
	Duration       time.Duration       `json:"-"`
}
