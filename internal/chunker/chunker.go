// Package chunker splits extracted documents into overlapping segments
// sized for embedding.
package chunker

import (
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/fyrsmithlabs/evidenced/internal/corpus"
)

// Defaults match the original ingestion parameters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// ErrInvalidConfig is returned for chunk size/overlap combinations that
// would loop or produce zero-length advances.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// Chunker splits documents recursively on paragraph breaks, then line
// breaks, then spaces, then raw characters, preferring the largest
// separator that yields pieces within the target size. Adjacent pieces
// share the configured overlap. Splitting is applied per page so every
// chunk keeps a citable page number.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
	size     int
	overlap  int
}

// New creates a Chunker. Overlap must be strictly less than size and
// both must be positive.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap cannot be negative, got %d", ErrInvalidConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be less than chunk size %d", ErrInvalidConfig, overlap, size)
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
	)

	return &Chunker{splitter: splitter, size: size, overlap: overlap}, nil
}

// Size returns the target chunk size in characters.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap in characters.
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks every page of every document. Each chunk inherits the
// full metadata of its parent document unchanged, plus the page number
// of the page it came from.
func (c *Chunker) Split(docs []corpus.Document) ([]corpus.Chunk, error) {
	var chunks []corpus.Chunk
	for _, doc := range docs {
		for _, page := range doc.Pages {
			pieces, err := c.splitter.SplitText(page.Text)
			if err != nil {
				return nil, fmt.Errorf("splitting %s page %d: %w", doc.SourceFile, page.Number, err)
			}
			for _, piece := range pieces {
				if piece == "" {
					continue
				}
				chunks = append(chunks, corpus.Chunk{
					Text:       piece,
					Meta:       doc.Meta,
					SourceFile: doc.SourceFile,
					Page:       page.Number,
				})
			}
		}
	}
	return chunks, nil
}
