package models

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned by the extractor for format tags it has no reader for.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrDecode is returned when text bytes are not valid in the declared encoding.
	ErrDecode = errors.New("text is not valid in the declared encoding")
	// ErrEmptyCorpus is returned when the reference and all candidates contain no terms.
	ErrEmptyCorpus = errors.New("reference and candidates contain no extractable vocabulary")
	// ErrMissingInput is returned when the job description or the candidate list is empty.
	ErrMissingInput = errors.New("job description and at least one candidate are required")
)

// ExtractionError ties an extraction failure to the document it happened on.
type ExtractionError struct {
	DocumentID string
	Format     Format
	Err        error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.DocumentID, e.Format, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
