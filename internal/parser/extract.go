package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"resume-matcher/internal/models"
)

const defaultWorkers = 4

// Extractor turns one document of a known format into text.
type Extractor interface {
	Extract(ctx context.Context, doc models.Document) (string, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, doc models.Document) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, doc models.Document) (string, error) {
	return f(ctx, doc)
}

// Options configures a Parser.
type Options struct {
	// Workers bounds how many documents are extracted at once.
	Workers int
	// TextEncoding is the declared encoding of plain-text documents (WHATWG label).
	TextEncoding string
}

// Parser dispatches documents to a format-specific Extractor.
type Parser struct {
	extractors map[models.Format]Extractor
	workers    int
}

// New returns a Parser with an extractor registered for every supported format.
func New(opts Options) *Parser {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	p := &Parser{
		extractors: make(map[models.Format]Extractor),
		workers:    workers,
	}
	p.Register(models.FormatPDF, ExtractorFunc(parsePDF))
	p.Register(models.FormatDOCX, ExtractorFunc(parseDOCX))
	p.Register(models.FormatText, textParser(opts.TextEncoding))
	p.Register(models.FormatInlineText, ExtractorFunc(parseInlineText))
	p.Register(models.FormatMarkdown, ExtractorFunc(parseMarkdown))
	p.Register(models.FormatHTML, ExtractorFunc(parseHTML))
	p.Register(models.FormatXLSX, ExtractorFunc(parseXLSX))
	p.Register(models.FormatXLSM, ExtractorFunc(parseXLSM))
	p.Register(models.FormatPPTX, ExtractorFunc(parsePPTX))
	return p
}

// Register sets the extractor for a format, replacing any previous one.
func (p *Parser) Register(format models.Format, e Extractor) {
	p.extractors[format] = e
}

// Extract returns the normalized text of doc. Unregistered formats yield ""
// together with models.ErrUnsupportedFormat; every other failure is wrapped in
// a *models.ExtractionError.
func (p *Parser) Extract(ctx context.Context, doc models.Document) (string, error) {
	e, ok := p.extractors[doc.Format]
	if !ok {
		return "", &models.ExtractionError{DocumentID: doc.ID, Format: doc.Format, Err: models.ErrUnsupportedFormat}
	}
	raw, err := e.Extract(ctx, doc)
	if err != nil {
		return "", &models.ExtractionError{DocumentID: doc.ID, Format: doc.Format, Err: err}
	}
	return normalize(raw), nil
}

// ExtractText never fails: problems degrade to empty text plus a warning so
// one bad upload cannot sink the batch.
func (p *Parser) ExtractText(ctx context.Context, doc models.Document) (out models.ExtractedText) {
	out.DocumentID = doc.ID
	defer func() {
		if r := recover(); r != nil {
			out.Text = ""
			out.Warning = fmt.Sprintf("extraction panicked: %v", r)
			log.Warn().Str("document", doc.ID).Str("format", string(doc.Format)).Msg(out.Warning)
		}
	}()

	if err := ctx.Err(); err != nil {
		out.Warning = err.Error()
		return out
	}

	text, err := p.Extract(ctx, doc)
	if err != nil {
		out.Warning = warningMessage(err)
		log.Warn().Err(err).Str("document", doc.ID).Str("format", string(doc.Format)).Msg("Document degraded to empty text")
		return out
	}
	out.Text = text
	return out
}

// ExtractAll extracts docs concurrently. The result has one entry per
// document in the same order as docs, whatever order the workers finish in.
func (p *Parser) ExtractAll(ctx context.Context, docs []models.Document) ([]models.ExtractedText, error) {
	out := make([]models.ExtractedText, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			out[i] = p.ExtractText(gctx, doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func warningMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrUnsupportedFormat):
		return "unsupported format, treated as empty"
	case errors.Is(err, models.ErrDecode):
		return "text is not valid in the declared encoding, treated as empty"
	default:
		return err.Error()
	}
}

func normalize(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(norm.NFC.String(s))
}
