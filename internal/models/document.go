package models

import (
	"path/filepath"
	"strings"
)

// Format is the declared format tag of a document.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
	FormatText     Format = "plain-text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatXLSX     Format = "xlsx"
	FormatXLSM     Format = "xlsm"
	FormatPPTX     Format = "pptx"
	FormatUnknown  Format = "unknown"
)

// FormatInlineText marks text that is already decoded, such as a JSON string
// field. It is never derived from a file extension.
const FormatInlineText Format = "inline-text"

var extensionFormats = map[string]Format{
	".pdf":      FormatPDF,
	".docx":     FormatDOCX,
	".txt":      FormatText,
	".text":     FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".xlsx":     FormatXLSX,
	".xlsm":     FormatXLSM,
	".pptx":     FormatPPTX,
}

// FormatFromFilename derives the format tag from a file extension.
func FormatFromFilename(name string) Format {
	if f, ok := extensionFormats[strings.ToLower(filepath.Ext(name))]; ok {
		return f
	}
	return FormatUnknown
}

// Document is a candidate or reference document as handed to the extractor.
// Data takes precedence over Path when both are set.
type Document struct {
	ID     string
	Path   string
	Data   []byte
	Format Format
}

// ExtractedText is the normalized text of one document. Text may be empty, in
// which case Warning usually says why.
type ExtractedText struct {
	DocumentID string
	Text       string
	Warning    string
}

// ExtractionWarning reports a per-document extraction problem that did not
// abort the match.
type ExtractionWarning struct {
	DocumentID string `json:"document_id"`
	Message    string `json:"message"`
}
