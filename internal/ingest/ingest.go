// Package ingest implements the offline ingestion batch: load study
// metadata, extract and clean source documents, chunk them, and persist
// embedded chunks into the vector store collection.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/evidenced/internal/chunker"
	"github.com/fyrsmithlabs/evidenced/internal/corpus"
	"github.com/fyrsmithlabs/evidenced/internal/extract"
	"github.com/fyrsmithlabs/evidenced/internal/vectorstore"
)

// Config holds ingestion parameters.
type Config struct {
	// MetaPath is the studies metadata JSON file.
	MetaPath string

	// RawDir is the directory holding the source documents.
	RawDir string

	// Collection is the destination vector store collection.
	Collection string

	// ChunkSize and ChunkOverlap are in characters.
	ChunkSize    int
	ChunkOverlap int

	// Reset drops the collection before ingesting. Without it a re-run
	// appends; idempotence holds only at full-rebuild granularity.
	Reset bool
}

// Summary reports what one ingestion run produced.
type Summary struct {
	RunID     string
	Studies   int
	Documents int
	Chunks    int
}

// Pipeline is the one-shot ingestion batch. It assumes exclusive
// access to the destination store directory; any bad record aborts the
// whole run with nothing marked partially done.
type Pipeline struct {
	store  vectorstore.Store
	cfg    Config
	logger *zap.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(store vectorstore.Store, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if err := vectorstore.ValidateCollectionName(cfg.Collection); err != nil {
		return nil, err
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = chunker.DefaultChunkSize
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = chunker.DefaultChunkOverlap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{store: store, cfg: cfg, logger: logger}, nil
}

// Run executes the batch: load → extract → chunk → embed+persist.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	runID := uuid.NewString()
	logger := p.logger.With(zap.String("ingest_run", runID))

	studies, err := corpus.LoadStudies(p.cfg.MetaPath, p.cfg.RawDir)
	if err != nil {
		return nil, fmt.Errorf("loading studies metadata: %w", err)
	}
	logger.Info("loaded study records", zap.Int("count", len(studies)))

	docs := make([]corpus.Document, 0, len(studies))
	for _, meta := range studies {
		doc, err := extract.Document(meta, p.cfg.RawDir)
		if err != nil {
			return nil, fmt.Errorf("extracting %s: %w", meta.Filename, err)
		}
		docs = append(docs, doc)
	}
	logger.Info("built documents", zap.Int("count", len(docs)))

	ch, err := chunker.New(p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	chunks, err := ch.Split(docs)
	if err != nil {
		return nil, fmt.Errorf("chunking documents: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks produced from %d documents", len(docs))
	}
	logger.Info("split documents into chunks", zap.Int("count", len(chunks)))

	if p.cfg.Reset {
		if err := p.store.DeleteCollection(ctx, p.cfg.Collection); err != nil &&
			!errors.Is(err, vectorstore.ErrCollectionNotFound) {
			return nil, fmt.Errorf("resetting collection: %w", err)
		}
		logger.Info("reset collection", zap.String("collection", p.cfg.Collection))
	}

	storeDocs := make([]vectorstore.Document, len(chunks))
	perStudySeq := make(map[string]int)
	for i, chunk := range chunks {
		key := chunk.Meta.StudyID + "#" + strconv.Itoa(chunk.Page)
		perStudySeq[key]++
		storeDocs[i] = vectorstore.Document{
			ID:         fmt.Sprintf("%s_p%d_c%d", chunk.Meta.StudyID, chunk.Page, perStudySeq[key]),
			Content:    chunk.Text,
			Collection: p.cfg.Collection,
			Metadata:   chunkMetadata(chunk, runID),
		}
	}

	if _, err := p.store.AddDocuments(ctx, storeDocs); err != nil {
		return nil, fmt.Errorf("persisting chunks: %w", err)
	}

	logger.Info("ingestion complete",
		zap.String("collection", p.cfg.Collection),
		zap.Int("studies", len(studies)),
		zap.Int("chunks", len(chunks)),
	)

	return &Summary{
		RunID:     runID,
		Studies:   len(studies),
		Documents: len(docs),
		Chunks:    len(chunks),
	}, nil
}

// chunkMetadata flattens the inherited study metadata onto the stored
// chunk, plus page and run provenance.
func chunkMetadata(chunk corpus.Chunk, runID string) map[string]interface{} {
	return map[string]interface{}{
		"study_id":        chunk.Meta.StudyID,
		"title":           chunk.Meta.Title,
		"year":            chunk.Meta.Year,
		"condition":       chunk.Meta.Condition,
		"intervention":    chunk.Meta.Intervention,
		"comparator":      chunk.Meta.Comparator,
		"primary_outcome": chunk.Meta.PrimaryOutcome,
		"sample_size":     chunk.Meta.SampleSize,
		"source_type":     chunk.Meta.SourceType,
		"source_file":     chunk.SourceFile,
		"page":            chunk.Page,
		"ingest_run":      runID,
	}
}
