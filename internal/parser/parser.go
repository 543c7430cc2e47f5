package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"resume-matcher/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/encoding/htmlindex"
)

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	slideRegex = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
)

// readBytes returns the document content, preferring in-memory data over the path.
func readBytes(doc models.Document) ([]byte, error) {
	if doc.Data != nil {
		return doc.Data, nil
	}
	if doc.Path == "" {
		return nil, fmt.Errorf("document %q has neither data nor path", doc.ID)
	}
	return os.ReadFile(doc.Path)
}

func parsePDF(_ context.Context, doc models.Document) (string, error) {
	var (
		reader *pdf.Reader
		err    error
	)
	if doc.Data != nil {
		reader, err = pdf.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	} else {
		f, openErr := os.Open(doc.Path)
		if openErr != nil {
			return "", openErr
		}
		defer f.Close()

		stat, statErr := f.Stat()
		if statErr != nil {
			return "", statErr
		}
		reader, err = pdf.NewReader(f, stat.Size())
	}
	if err != nil {
		return "", err
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		pages = append(pages, pdfPageText(reader, i, doc.ID))
	}
	return strings.Join(pages, "\n"), nil
}

// pdfPageText returns the text of one page, or "" when the page cannot be read.
func pdfPageText(reader *pdf.Reader, num int, docID string) (pageText string) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Str("document", docID).Int("page", num).Interface("panic", r).Msg("Skipping unreadable PDF page")
			pageText = ""
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return ""
	}
	content, err := page.GetPlainText(nil)
	if err != nil {
		log.Debug().Err(err).Str("document", docID).Int("page", num).Msg("Skipping unreadable PDF page")
		return ""
	}
	return content
}

func parseDOCX(_ context.Context, doc models.Document) (string, error) {
	var (
		r   *docx.ReplaceDocx
		err error
	)
	if doc.Data != nil {
		r, err = docx.ReadDocxFromMemory(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	} else {
		r, err = docx.ReadDocxFile(doc.Path)
	}
	if err != nil {
		return "", err
	}
	defer r.Close()

	return docxBodyText(r.Editable().GetContent())
}

// docxBodyText pulls the visible text runs out of word/document.xml.
func docxBodyText(content string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	var (
		buf    strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read docx body: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				buf.WriteByte('\t')
			case "br", "cr":
				buf.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				buf.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				buf.Write(t)
			}
		}
	}
	return buf.String(), nil
}

func parsePPTX(_ context.Context, doc models.Document) (string, error) {
	data, err := readBytes(doc)
	if err != nil {
		return "", err
	}
	f, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range f.File {
		m := slideRegex.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: num, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var out strings.Builder
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		out.WriteString(extractTextFromXML(string(data)))
		out.WriteByte('\n')
	}
	return out.String(), nil
}

func parseXLSX(_ context.Context, doc models.Document) (string, error) {
	var (
		f   *xlsx.File
		err error
	)
	if doc.Data != nil {
		f, err = xlsx.OpenBinary(doc.Data)
	} else {
		f, err = xlsx.OpenFile(doc.Path)
	}
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, sheet := range f.Sheets {
		for _, row := range sheet.Rows {
			if row == nil {
				continue
			}
			for _, cell := range row.Cells {
				if cell == nil {
					continue
				}
				text.WriteString(cell.String() + "\t")
			}
			text.WriteString("\n")
		}
	}
	return text.String(), nil
}

func parseXLSM(_ context.Context, doc models.Document) (string, error) {
	var (
		f   *excelize.File
		err error
	)
	if doc.Data != nil {
		f, err = excelize.OpenReader(bytes.NewReader(doc.Data))
	} else {
		f, err = excelize.OpenFile(doc.Path)
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	var text strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		for _, row := range rows {
			for _, cell := range row {
				text.WriteString(cell + "\t")
			}
			text.WriteString("\n")
		}
	}
	return text.String(), nil
}

func parseMarkdown(_ context.Context, doc models.Document) (string, error) {
	src, err := readBytes(doc)
	if err != nil {
		return "", err
	}
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	root := md.Parser().Parse(text.NewReader(src))

	var buf bytes.Buffer
	err = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				buf.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.AutoLink:
			buf.Write(node.Label(src))
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func parseHTML(ctx context.Context, doc models.Document) (string, error) {
	data, err := readBytes(doc)
	if err != nil {
		return "", err
	}
	docs, err := documentloaders.NewHTML(bytes.NewReader(data)).Load(ctx)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, d.PageContent)
	}
	return strings.Join(parts, "\n"), nil
}

// textParser decodes plain text in the configured encoding.
func textParser(encoding string) ExtractorFunc {
	return func(_ context.Context, doc models.Document) (string, error) {
		data, err := readBytes(doc)
		if err != nil {
			return "", err
		}
		return decodeText(data, encoding)
	}
}

// parseInlineText returns already decoded text as-is. The declared text
// encoding applies to files only.
func parseInlineText(_ context.Context, doc models.Document) (string, error) {
	data, err := readBytes(doc)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", models.ErrDecode
	}
	return string(data), nil
}

func decodeText(data []byte, encoding string) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	name := strings.ToLower(strings.TrimSpace(encoding))
	if name == "" || name == "utf-8" || name == "utf8" {
		if !utf8.Valid(data) {
			return "", models.ErrDecode
		}
		return string(data), nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return "", fmt.Errorf("unknown text encoding %q: %w", encoding, err)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrDecode, err)
	}
	return string(out), nil
}

func extractTextFromXML(xmlContent string) string {
	var text strings.Builder
	parts := strings.Split(xmlContent, "<a:t>")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		endIdx := strings.Index(part, "</a:t>")
		if endIdx >= 0 {
			text.WriteString(html.UnescapeString(part[:endIdx]) + " ")
		}
	}
	return text.String()
}
