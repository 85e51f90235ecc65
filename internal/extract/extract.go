// Package extract converts source documents into cleaned per-page text.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/fyrsmithlabs/evidenced/internal/corpus"
)

// ErrExtractionFailed is returned when a source file cannot be opened
// or parsed.
var ErrExtractionFailed = errors.New("text extraction failed")

var whitespaceRun = regexp.MustCompile(`\s+`)

// Clean normalizes extracted page text: repairs line-break hyphenation,
// flattens remaining newlines to spaces, and collapses whitespace runs.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "-\n", "")
	text = strings.ReplaceAll(text, "\n", " ")
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// File extracts cleaned pages from a source document, dispatching on
// the file extension. Page boundaries are preserved so chunks can cite
// real page numbers.
func File(path string) ([]corpus.Page, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return pdfPages(path)
	case ".txt":
		return textPages(path)
	default:
		return nil, fmt.Errorf("%w: unrecognized extension %q", ErrExtractionFailed, filepath.Ext(path))
	}
}

// pdfPages extracts per-page plain text from a PDF.
func pdfPages(path string) ([]corpus.Page, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrExtractionFailed, path, err)
	}
	defer f.Close()

	total := reader.NumPage()
	pages := make([]corpus.Page, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d of %s: %v", ErrExtractionFailed, i, path, err)
		}
		cleaned := Clean(text)
		if cleaned == "" {
			continue
		}
		pages = append(pages, corpus.Page{Number: i, Text: cleaned})
	}

	return pages, nil
}

// textPages reads a plaintext file as a single page.
func textPages(path string) ([]corpus.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrExtractionFailed, path, err)
	}
	cleaned := Clean(string(data))
	if cleaned == "" {
		return nil, nil
	}
	return []corpus.Page{{Number: 1, Text: cleaned}}, nil
}

// Document builds an immutable corpus document from a study record by
// extracting its source file.
func Document(meta corpus.StudyMetadata, rawDir string) (corpus.Document, error) {
	path := meta.SourcePath(rawDir)
	pages, err := File(path)
	if err != nil {
		return corpus.Document{}, err
	}
	return corpus.Document{
		Meta:       meta,
		SourceFile: path,
		Pages:      pages,
	}, nil
}
