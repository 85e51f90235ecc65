package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/evidenced/internal/corpus"
	"github.com/fyrsmithlabs/evidenced/internal/ingest"
	"github.com/fyrsmithlabs/evidenced/internal/vectorstore"
)

// hashEmbedder produces deterministic normalized vectors.
type hashEmbedder struct{}

func (hashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = embed(text)
	}
	return vectors, nil
}

func (hashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return embed(text), nil
}

func embed(text string) []float32 {
	const dim = 64
	v := make([]float32, dim)
	hash := 0
	for _, c := range text {
		hash = (hash*31 + int(c)) % 1000
	}
	var sumSq float32
	for i := range v {
		v[i] = float32((hash+i)%100) / 100.0
		sumSq += v[i] * v[i]
	}
	if sumSq > 0 {
		norm := float32(1.0) / sqrt32(sumSq)
		for i := range v {
			v[i] *= norm
		}
	}
	return v
}

func sqrt32(x float32) float32 {
	if x <= 0 {
		return 0
	}
	z := x / 2
	for i := 0; i < 10; i++ {
		z = (z + x/z) / 2
	}
	return z
}

func newIngestStore(t *testing.T) vectorstore.Store {
	t.Helper()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:              t.TempDir(),
		DefaultCollection: "clinical_evidence",
		VectorSize:        64,
	}, hashEmbedder{}, zap.NewNop())
	require.NoError(t, err)
	return store
}

// writeFixtureCorpus lays out a two-study corpus of plaintext sources.
func writeFixtureCorpus(t *testing.T) (metaPath, rawDir string) {
	t.Helper()

	dir := t.TempDir()
	rawDir = filepath.Join(dir, "raw")
	require.NoError(t, os.MkdirAll(rawDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(rawDir, "guideline_a.txt"),
		[]byte("ACE inhibitors are recommended as first-line therapy for patients with chronic kidney disease and proteinuria."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(rawDir, "trial_b.txt"),
		[]byte("In the randomized trial, thiazide diuretics reduced systolic blood pressure versus placebo."), 0o644))

	meta := `[
		{"filename": "guideline_a.txt", "study_id": "S1", "title": "Guideline A", "year": 2020, "condition": "CKD"},
		{"filename": "trial_b.txt", "study_id": "S2", "title": "Trial B", "year": 2021, "condition": "Hypertension", "source_type": "rct"}
	]`
	metaPath = filepath.Join(dir, "studies_meta.json")
	require.NoError(t, os.WriteFile(metaPath, []byte(meta), 0o644))
	return metaPath, rawDir
}

func TestNewPipeline_Validation(t *testing.T) {
	_, err := ingest.NewPipeline(nil, ingest.Config{Collection: "c"}, nil)
	assert.Error(t, err)

	_, err = ingest.NewPipeline(newIngestStore(t), ingest.Config{Collection: "bad name!"}, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidCollectionName)
}

func TestPipeline_Run(t *testing.T) {
	metaPath, rawDir := writeFixtureCorpus(t)
	store := newIngestStore(t)
	ctx := context.Background()

	pipeline, err := ingest.NewPipeline(store, ingest.Config{
		MetaPath:   metaPath,
		RawDir:     rawDir,
		Collection: "clinical_evidence",
	}, zap.NewNop())
	require.NoError(t, err)

	summary, err := pipeline.Run(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 2, summary.Studies)
	assert.Equal(t, 2, summary.Documents)
	assert.Equal(t, 2, summary.Chunks)

	info, err := store.GetCollectionInfo(ctx, "clinical_evidence")
	require.NoError(t, err)
	assert.Equal(t, 2, info.PointCount)

	results, err := store.SearchInCollection(ctx, "clinical_evidence", "kidney disease therapy", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byStudy := map[string]vectorstore.SearchResult{}
	for _, r := range results {
		byStudy[r.Metadata["study_id"].(string)] = r
	}

	s1, ok := byStudy["S1"]
	require.True(t, ok)
	assert.Equal(t, "S1_p1_c1", s1.ID)
	assert.Equal(t, "Guideline A", s1.Metadata["title"])
	assert.Equal(t, "2020", s1.Metadata["year"])
	assert.Equal(t, "1", s1.Metadata["page"])
	assert.Equal(t, "guideline", s1.Metadata["source_type"])
	assert.Equal(t, summary.RunID, s1.Metadata["ingest_run"])
	assert.True(t, strings.HasSuffix(s1.Metadata["source_file"].(string), "guideline_a.txt"))

	s2, ok := byStudy["S2"]
	require.True(t, ok)
	assert.Equal(t, "rct", s2.Metadata["source_type"])
}

func TestPipeline_Run_ChunkIDsSequencePerPage(t *testing.T) {
	dir := t.TempDir()
	rawDir := filepath.Join(dir, "raw")
	require.NoError(t, os.MkdirAll(rawDir, 0o755))

	// Long enough to split into several chunks at size 200.
	body := strings.TrimSpace(strings.Repeat("guideline recommendation statement with supporting evidence ", 40))
	require.NoError(t, os.WriteFile(filepath.Join(rawDir, "long.txt"), []byte(body), 0o644))

	metaPath := filepath.Join(dir, "studies_meta.json")
	require.NoError(t, os.WriteFile(metaPath,
		[]byte(`[{"filename": "long.txt", "study_id": "S1", "title": "Long Guideline", "year": 2022}]`), 0o644))

	store := newIngestStore(t)
	pipeline, err := ingest.NewPipeline(store, ingest.Config{
		MetaPath:     metaPath,
		RawDir:       rawDir,
		Collection:   "clinical_evidence",
		ChunkSize:    200,
		ChunkOverlap: 40,
	}, zap.NewNop())
	require.NoError(t, err)

	summary, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	require.Greater(t, summary.Chunks, 1)

	results, err := store.SearchInCollection(context.Background(), "clinical_evidence", "recommendation", summary.Chunks)
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, r := range results {
		ids[r.ID] = true
	}
	assert.True(t, ids["S1_p1_c1"])
	assert.True(t, ids["S1_p1_c2"])
	assert.Len(t, ids, summary.Chunks)
}

func TestPipeline_Run_ResetRebuildsCollection(t *testing.T) {
	metaPath, rawDir := writeFixtureCorpus(t)
	store := newIngestStore(t)
	ctx := context.Background()

	cfg := ingest.Config{
		MetaPath:   metaPath,
		RawDir:     rawDir,
		Collection: "clinical_evidence",
		Reset:      true,
	}

	pipeline, err := ingest.NewPipeline(store, cfg, zap.NewNop())
	require.NoError(t, err)

	// First run: resetting a collection that does not exist yet is fine.
	_, err = pipeline.Run(ctx)
	require.NoError(t, err)

	// Second run rebuilds instead of appending.
	_, err = pipeline.Run(ctx)
	require.NoError(t, err)

	info, err := store.GetCollectionInfo(ctx, "clinical_evidence")
	require.NoError(t, err)
	assert.Equal(t, 2, info.PointCount)
}

func TestPipeline_Run_BadMetadataAborts(t *testing.T) {
	dir := t.TempDir()
	rawDir := filepath.Join(dir, "raw")
	require.NoError(t, os.MkdirAll(rawDir, 0o755))

	metaPath := filepath.Join(dir, "studies_meta.json")
	require.NoError(t, os.WriteFile(metaPath, []byte(`{"not": "a list"}`), 0o644))

	store := newIngestStore(t)
	pipeline, err := ingest.NewPipeline(store, ingest.Config{
		MetaPath:   metaPath,
		RawDir:     rawDir,
		Collection: "clinical_evidence",
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = pipeline.Run(context.Background())
	assert.ErrorIs(t, err, corpus.ErrNotAList)

	exists, err := store.CollectionExists(context.Background(), "clinical_evidence")
	require.NoError(t, err)
	assert.False(t, exists, "aborted run must not create the collection")
}
