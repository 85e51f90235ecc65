// Package corpus defines the clinical study corpus model and the
// studies-metadata loader used by the ingestion pipeline.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sentinel errors for corpus loading. All of them are ingestion errors:
// any one of them aborts the whole batch.
var (
	// ErrMetaNotFound is returned when the studies metadata file does not exist.
	ErrMetaNotFound = errors.New("studies metadata file not found")

	// ErrNotAList is returned when the metadata file is not a JSON array of records.
	ErrNotAList = errors.New("studies metadata is not a JSON array")

	// ErrMissingFilename is returned when a record has no filename.
	ErrMissingFilename = errors.New("study record has no filename")

	// ErrSourceMissing is returned when a referenced source file does not exist.
	ErrSourceMissing = errors.New("source file not found")

	// ErrUnsupportedType is returned for source files with an unrecognized extension.
	ErrUnsupportedType = errors.New("unsupported source file type")
)

// DefaultSourceType is assumed when a record does not declare one.
const DefaultSourceType = "guideline"

// StudyMetadata is one record of the studies metadata file. Every chunk
// derived from the study's source document inherits these fields.
type StudyMetadata struct {
	Filename       string `json:"filename"`
	StudyID        string `json:"study_id"`
	Title          string `json:"title"`
	Year           int    `json:"year"`
	Condition      string `json:"condition"`
	Intervention   string `json:"intervention"`
	Comparator     string `json:"comparator"`
	PrimaryOutcome string `json:"primary_outcome"`
	SampleSize     int    `json:"sample_size"`
	SourceType     string `json:"source_type"`
}

// Page is the cleaned text of one page of a source document.
type Page struct {
	Number int
	Text   string
}

// Document is one extracted source document. Immutable once built.
type Document struct {
	Meta       StudyMetadata
	SourceFile string
	Pages      []Page
}

// Text returns the document's full text with pages joined by a
// paragraph break. Used by tests and diagnostics, not by chunking,
// which operates per page.
func (d Document) Text() string {
	parts := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		parts[i] = p.Text
	}
	return strings.Join(parts, "\n\n")
}

// Chunk is a bounded-length segment of one page of a document,
// carrying the parent document's metadata.
type Chunk struct {
	Text       string
	Meta       StudyMetadata
	SourceFile string
	Page       int
}

// recognizedExtensions are the source file types the extractor can read.
var recognizedExtensions = map[string]bool{
	".pdf": true,
	".txt": true,
}

// LoadStudies reads and validates the studies metadata file.
//
// The file must be a JSON array of records; every record must name an
// existing file under rawDir with a recognized extension. The first
// invalid record fails the whole load.
func LoadStudies(metaPath, rawDir string) ([]StudyMetadata, error) {
	data, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMetaNotFound, metaPath)
		}
		return nil, fmt.Errorf("reading studies metadata: %w", err)
	}

	// Decode into raw messages first so a top-level object fails with
	// ErrNotAList instead of a field-level type error.
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotAList, metaPath)
	}

	studies := make([]StudyMetadata, 0, len(records))
	for i, raw := range records {
		var meta StudyMetadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("decoding study record %d: %w", i, err)
		}
		if meta.SourceType == "" {
			meta.SourceType = DefaultSourceType
		}
		if err := validateRecord(i, meta, rawDir); err != nil {
			return nil, err
		}
		studies = append(studies, meta)
	}

	return studies, nil
}

// SourcePath returns the absolute path of the study's source file
// under rawDir.
func (m StudyMetadata) SourcePath(rawDir string) string {
	return filepath.Join(rawDir, m.Filename)
}

func validateRecord(index int, meta StudyMetadata, rawDir string) error {
	if meta.Filename == "" {
		return fmt.Errorf("%w: record %d", ErrMissingFilename, index)
	}

	path := meta.SourcePath(rawDir)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: %s (record %d)", ErrSourceMissing, path, index)
	}

	ext := strings.ToLower(filepath.Ext(meta.Filename))
	if !recognizedExtensions[ext] {
		return fmt.Errorf("%w: %s (record %d)", ErrUnsupportedType, meta.Filename, index)
	}

	return nil
}
