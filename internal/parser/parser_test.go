package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"resume-matcher/internal/models"
)

const docxBody = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Senior Go Developer</w:t></w:r></w:p>
<w:p><w:r><w:t xml:space="preserve">Kubernetes </w:t></w:r><w:r><w:t>and gRPC</w:t></w:r><w:r><w:tab/><w:t>Postgres</w:t></w:r></w:p>
</w:body>
</w:document>`

const docxRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestExtractPlainText(t *testing.T) {
	p := New(Options{})
	doc := models.Document{ID: "a.txt", Data: []byte("\xEF\xBB\xBF  Python developer\n"), Format: models.FormatText}

	got, err := p.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "Python developer" {
		t.Errorf("got %q, want %q", got, "Python developer")
	}
}

func TestExtractPlainTextFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.txt")
	if err := os.WriteFile(path, []byte("flask experience"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := New(Options{})

	got, err := p.Extract(context.Background(), models.Document{ID: "resume.txt", Path: path, Format: models.FormatText})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "flask experience" {
		t.Errorf("got %q", got)
	}
}

func TestExtractPlainTextInvalidUTF8(t *testing.T) {
	p := New(Options{})
	doc := models.Document{ID: "bad.txt", Data: []byte{'o', 'k', 0xff, 0xfe}, Format: models.FormatText}

	_, err := p.Extract(context.Background(), doc)
	if !errors.Is(err, models.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	var extErr *models.ExtractionError
	if !errors.As(err, &extErr) || extErr.DocumentID != "bad.txt" {
		t.Errorf("expected ExtractionError for bad.txt, got %#v", err)
	}

	out := p.ExtractText(context.Background(), doc)
	if out.Text != "" {
		t.Errorf("expected empty text, got %q", out.Text)
	}
	if out.Warning == "" {
		t.Error("expected a warning for undecodable text")
	}
}

func TestExtractPlainTextDeclaredEncoding(t *testing.T) {
	p := New(Options{TextEncoding: "windows-1252"})
	doc := models.Document{ID: "latin.txt", Data: []byte("caf\xe9 owner"), Format: models.FormatText}

	got, err := p.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "café owner" {
		t.Errorf("got %q, want %q", got, "café owner")
	}
}

func TestExtractUnknownFormat(t *testing.T) {
	p := New(Options{})
	doc := models.Document{ID: "photo.png", Data: []byte{0x89, 'P', 'N', 'G'}, Format: models.FormatUnknown}

	got, err := p.Extract(context.Background(), doc)
	if !errors.Is(err, models.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if got != "" {
		t.Errorf("expected empty text, got %q", got)
	}

	out := p.ExtractText(context.Background(), doc)
	if out.Text != "" || out.DocumentID != "photo.png" {
		t.Errorf("unexpected extraction %+v", out)
	}
	if !strings.Contains(out.Warning, "unsupported") {
		t.Errorf("warning = %q", out.Warning)
	}
}

func TestExtractDOCX(t *testing.T) {
	data := zipBytes(t, map[string]string{
		"word/document.xml":            docxBody,
		"word/_rels/document.xml.rels": docxRels,
	})
	p := New(Options{})

	got, err := p.Extract(context.Background(), models.Document{ID: "cv.docx", Data: data, Format: models.FormatDOCX})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, want := range []string{"Senior Go Developer", "Kubernetes and gRPC", "Postgres"} {
		if !strings.Contains(got, want) {
			t.Errorf("docx text %q missing %q", got, want)
		}
	}
	if strings.Contains(got, "<w:") {
		t.Errorf("docx text still contains markup: %q", got)
	}

	path := filepath.Join(t.TempDir(), "cv.docx")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	fromPath, err := p.Extract(context.Background(), models.Document{ID: "cv.docx", Path: path, Format: models.FormatDOCX})
	if err != nil {
		t.Fatalf("Extract from path: %v", err)
	}
	if fromPath != got {
		t.Errorf("path extraction %q differs from memory extraction %q", fromPath, got)
	}
}

func TestDocxBodyText(t *testing.T) {
	got, err := docxBodyText(docxBody)
	if err != nil {
		t.Fatalf("docxBodyText: %v", err)
	}
	want := "Senior Go Developer\nKubernetes and gRPC\tPostgres\n"
	if strings.TrimLeft(got, "\n") != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractPPTXSlideOrder(t *testing.T) {
	slide := func(s string) string {
		return `<p:sld xmlns:a="a" xmlns:p="p"><a:t>` + s + `</a:t></p:sld>`
	}
	data := zipBytes(t, map[string]string{
		"ppt/slides/slide10.xml":           slide("tenth"),
		"ppt/slides/slide2.xml":            slide("second &amp; more"),
		"ppt/slides/slide1.xml":            slide("first"),
		"ppt/slides/_rels/slide1.xml.rels": "<ignored/>",
	})
	p := New(Options{})

	got, err := p.Extract(context.Background(), models.Document{ID: "deck.pptx", Data: data, Format: models.FormatPPTX})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	first, second, tenth := strings.Index(got, "first"), strings.Index(got, "second & more"), strings.Index(got, "tenth")
	if first < 0 || second < 0 || tenth < 0 {
		t.Fatalf("missing slide text in %q", got)
	}
	if !(first < second && second < tenth) {
		t.Errorf("slides out of order: %q", got)
	}
}

func TestExtractMarkdown(t *testing.T) {
	src := "# Senior Go Engineer\n\nKubernetes and **gRPC** experience.\n\n```\nmake build\n```\n"
	p := New(Options{})

	got, err := p.Extract(context.Background(), models.Document{ID: "cv.md", Data: []byte(src), Format: models.FormatMarkdown})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, want := range []string{"Senior Go Engineer", "gRPC", "experience", "make build"} {
		if !strings.Contains(got, want) {
			t.Errorf("markdown text %q missing %q", got, want)
		}
	}
	if strings.Contains(got, "**") || strings.Contains(got, "#") || strings.Contains(got, "```") {
		t.Errorf("markdown syntax leaked into %q", got)
	}
}

func TestExtractHTML(t *testing.T) {
	src := `<html><head><title>CV</title></head><body><h1>Jane Doe</h1><p>Go developer</p></body></html>`
	p := New(Options{})

	got, err := p.Extract(context.Background(), models.Document{ID: "cv.html", Data: []byte(src), Format: models.FormatHTML})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, "Jane Doe") || !strings.Contains(got, "Go developer") {
		t.Errorf("html text %q missing body content", got)
	}
	if strings.Contains(got, "<p>") {
		t.Errorf("html tags leaked into %q", got)
	}
}

func TestExtractSpreadsheets(t *testing.T) {
	f := excelize.NewFile()
	if err := f.SetCellValue("Sheet1", "A1", "Skill"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Sheet1", "B1", "Golang"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Sheet1", "A2", "Years"); err != nil {
		t.Fatal(err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	data := buf.Bytes()
	p := New(Options{})

	for _, format := range []models.Format{models.FormatXLSX, models.FormatXLSM} {
		got, err := p.Extract(context.Background(), models.Document{ID: "skills", Data: data, Format: format})
		if err != nil {
			t.Fatalf("%s Extract: %v", format, err)
		}
		for _, want := range []string{"Skill", "Golang", "Years"} {
			if !strings.Contains(got, want) {
				t.Errorf("%s text %q missing %q", format, got, want)
			}
		}
	}
}

// buildPDF writes a minimal PDF with one page per entry. An empty entry
// becomes a page without a content stream.
func buildPDF(pages []string) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	pageNums := make([]int, len(pages))
	kids := make([]string, len(pages))
	next := 4
	for i, text := range pages {
		pageNums[i] = next
		kids[i] = fmt.Sprintf("%d 0 R", next)
		next++
		if text != "" {
			next++
		}
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	for i, text := range pages {
		page := "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >>"
		if text == "" {
			obj(page + " >>")
			continue
		}
		obj(fmt.Sprintf("%s /Contents %d 0 R >>", page, pageNums[i]+1))
		content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestExtractPDFPagesInOrder(t *testing.T) {
	p := New(Options{})
	data := buildPDF([]string{"Alpha", "Beta", "Gamma"})

	out := p.ExtractText(context.Background(), models.Document{ID: "cv.pdf", Data: data, Format: models.FormatPDF})
	if out.Warning != "" {
		t.Fatalf("unexpected warning: %s", out.Warning)
	}
	if got, want := strings.Fields(out.Text), []string{"Alpha", "Beta", "Gamma"}; !reflect.DeepEqual(got, want) {
		t.Errorf("words = %q, want %q", got, want)
	}
}

func TestExtractPDFSkipsPageWithoutText(t *testing.T) {
	p := New(Options{})
	path := filepath.Join(t.TempDir(), "cv.pdf")
	if err := os.WriteFile(path, buildPDF([]string{"Alpha", "", "Gamma"}), 0o644); err != nil {
		t.Fatal(err)
	}

	out := p.ExtractText(context.Background(), models.Document{ID: "cv.pdf", Path: path, Format: models.FormatFromFilename(path)})
	if out.Warning != "" {
		t.Fatalf("unexpected warning: %s", out.Warning)
	}
	if got, want := strings.Fields(out.Text), []string{"Alpha", "Gamma"}; !reflect.DeepEqual(got, want) {
		t.Errorf("words = %q, want %q", got, want)
	}
}

func TestExtractCorruptPDFDegrades(t *testing.T) {
	p := New(Options{})
	doc := models.Document{ID: "broken.pdf", Data: []byte("this is not a pdf"), Format: models.FormatPDF}

	out := p.ExtractText(context.Background(), doc)
	if out.Text != "" {
		t.Errorf("expected empty text, got %q", out.Text)
	}
	if out.Warning == "" {
		t.Error("expected a warning for a corrupt pdf")
	}
}

func TestInlineTextSkipsDeclaredEncoding(t *testing.T) {
	p := New(Options{TextEncoding: "windows-1252"})
	data := []byte("café résumé")

	inline, err := p.Extract(context.Background(), models.Document{ID: "a", Data: data, Format: models.FormatInlineText})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if inline != "café résumé" {
		t.Errorf("inline text = %q", inline)
	}

	file, err := p.Extract(context.Background(), models.Document{ID: "a.txt", Data: data, Format: models.FormatText})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if file == inline {
		t.Errorf("file text should be decoded as windows-1252, got %q", file)
	}

	if _, err := p.Extract(context.Background(), models.Document{ID: "b", Data: []byte{0xff, 0xfe, 'a'}, Format: models.FormatInlineText}); !errors.Is(err, models.ErrDecode) {
		t.Errorf("invalid UTF-8 err = %v, want ErrDecode", err)
	}
}

func TestExtractMissingPath(t *testing.T) {
	p := New(Options{})
	out := p.ExtractText(context.Background(), models.Document{
		ID:     "gone.txt",
		Path:   filepath.Join(t.TempDir(), "gone.txt"),
		Format: models.FormatText,
	})
	if out.Text != "" || out.Warning == "" {
		t.Errorf("expected degraded extraction, got %+v", out)
	}
}

func TestExtractAllPreservesOrder(t *testing.T) {
	p := New(Options{Workers: 8})
	p.Register(models.FormatText, ExtractorFunc(func(_ context.Context, doc models.Document) (string, error) {
		time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
		return string(doc.Data), nil
	}))

	docs := make([]models.Document, 40)
	for i := range docs {
		docs[i] = models.Document{ID: fmt.Sprintf("doc-%02d", i), Data: []byte(fmt.Sprintf("text %d", i)), Format: models.FormatText}
	}
	docs[7].Format = models.FormatUnknown

	out, err := p.ExtractAll(context.Background(), docs)
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	if len(out) != len(docs) {
		t.Fatalf("got %d texts, want %d", len(out), len(docs))
	}
	for i, et := range out {
		if et.DocumentID != docs[i].ID {
			t.Errorf("position %d: got %s, want %s", i, et.DocumentID, docs[i].ID)
		}
		if i == 7 {
			if et.Text != "" || et.Warning == "" {
				t.Errorf("unknown format doc: %+v", et)
			}
			continue
		}
		if et.Text != fmt.Sprintf("text %d", i) {
			t.Errorf("position %d: text %q", i, et.Text)
		}
	}
}

func TestExtractAllCanceled(t *testing.T) {
	p := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ExtractAll(ctx, []models.Document{{ID: "a.txt", Data: []byte("a"), Format: models.FormatText}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExtractRecoversFromPanic(t *testing.T) {
	p := New(Options{})
	p.Register(models.FormatText, ExtractorFunc(func(context.Context, models.Document) (string, error) {
		panic("boom")
	}))

	out := p.ExtractText(context.Background(), models.Document{ID: "a.txt", Data: []byte("x"), Format: models.FormatText})
	if out.Text != "" || !strings.Contains(out.Warning, "boom") {
		t.Errorf("unexpected extraction %+v", out)
	}
}
