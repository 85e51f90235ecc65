package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	httpapi "github.com/fyrsmithlabs/evidenced/internal/http"
	"github.com/fyrsmithlabs/evidenced/internal/rag"
	"github.com/fyrsmithlabs/evidenced/internal/vectorstore"
)

// fakeStore serves canned retrieval results to the query service.
type fakeStore struct {
	results   []vectorstore.SearchResult
	searchErr error
	info      *vectorstore.CollectionInfo
	infoErr   error
	searches  int
}

func (f *fakeStore) AddDocuments(ctx context.Context, docs []vectorstore.Document) ([]string, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) SearchInCollection(ctx context.Context, collection, query string, k int) ([]vectorstore.SearchResult, error) {
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

func (f *fakeStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	return f.info != nil, nil
}

func (f *fakeStore) GetCollectionInfo(ctx context.Context, collection string) (*vectorstore.CollectionInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return f.info, nil
}

func (f *fakeStore) DeleteCollection(ctx context.Context, collection string) error { return nil }
func (f *fakeStore) Close() error                                                  { return nil }

func retrievedChunk() vectorstore.SearchResult {
	return vectorstore.SearchResult{
		ID:      "S1_p3_c1",
		Content: "ACE inhibitors are recommended first line.",
		Score:   0.91,
		Metadata: map[string]interface{}{
			"study_id":    "S1",
			"title":       "Guideline A",
			"year":        "2020",
			"page":        "3",
			"condition":   "CKD",
			"source_type": "guideline",
			"source_file": "data/raw/guideline_a.txt",
		},
	}
}

func newTestServer(t *testing.T, store vectorstore.Store) *httpapi.Server {
	t.Helper()

	svc, err := rag.NewService(store, "clinical_evidence", rag.NewComposer(rag.Passthrough{}, nil), zap.NewNop())
	require.NoError(t, err)

	srv, err := httpapi.NewServer(svc, zap.NewNop(), nil)
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestNewServer_Validation(t *testing.T) {
	_, err := httpapi.NewServer(nil, zap.NewNop(), nil)
	assert.Error(t, err)

	svc, err := rag.NewService(&fakeStore{}, "c", rag.NewComposer(rag.Passthrough{}, nil), nil)
	require.NoError(t, err)
	_, err = httpapi.NewServer(svc, nil, nil)
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	rec := doJSON(t, srv.Echo(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpapi.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestReadyz_NotReady(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeStore
	}{
		{"missing collection", &fakeStore{infoErr: vectorstore.ErrCollectionNotFound}},
		{"empty collection", &fakeStore{info: &vectorstore.CollectionInfo{PointCount: 0}}},
		{
			"probe failure",
			&fakeStore{
				info:      &vectorstore.CollectionInfo{PointCount: 5},
				searchErr: errors.New("boom"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.store)
			rec := doJSON(t, srv.Echo(), http.MethodGet, "/readyz", "")
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		})
	}
}

func TestReadyz_Ready(t *testing.T) {
	srv := newTestServer(t, &fakeStore{
		info:    &vectorstore.CollectionInfo{PointCount: 42},
		results: []vectorstore.SearchResult{retrievedChunk()},
	})

	rec := doJSON(t, srv.Echo(), http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpapi.ReadyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "ok", resp.VectorStore)
	assert.Equal(t, 42, resp.CollectionCount)
	assert.Equal(t, 1, resp.NumResults)
	assert.Equal(t, rag.DefaultK, resp.K)
}

func TestQuery_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"question too short", `{"question": "hi"}`},
		{"question too long", `{"question": "` + strings.Repeat("q", 2001) + `"}`},
		{"k explicit zero", `{"question": "valid question", "k": 0}`},
		{"k too small", `{"question": "valid question", "k": -1}`},
		{"k too large", `{"question": "valid question", "k": 21}`},
		{"malformed body", `{"question": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			srv := newTestServer(t, store)

			rec := doJSON(t, srv.Echo(), http.MethodPost, "/query", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, store.searches, "invalid requests must not reach retrieval")
		})
	}
}

func TestQuery_DefaultK(t *testing.T) {
	store := &fakeStore{results: []vectorstore.SearchResult{retrievedChunk()}}
	srv := newTestServer(t, store)

	rec := doJSON(t, srv.Echo(), http.MethodPost, "/query", `{"question": "What is first-line therapy for CKD?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpapi.QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "S1", resp.Sources[0].StudyID)
	assert.Equal(t, 2020, resp.Sources[0].Year)
	assert.Equal(t, 3, resp.Sources[0].Page)
	assert.Nil(t, resp.RawContext)
}

func TestQuery_RawContext(t *testing.T) {
	store := &fakeStore{results: []vectorstore.SearchResult{retrievedChunk()}}
	srv := newTestServer(t, store)

	rec := doJSON(t, srv.Echo(), http.MethodPost, "/query",
		`{"question": "What is first-line therapy for CKD?", "k": 4, "raw_context": true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpapi.QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.RawContext)
	assert.Contains(t, *resp.RawContext, "[1] S1 | Guideline A (2020) | p.3|CKD")
}

func TestQuery_NoResults(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	rec := doJSON(t, srv.Echo(), http.MethodPost, "/query", `{"question": "completely unindexed topic"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp httpapi.QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Answer)
	assert.Equal(t, rag.NoInformationAnswer, *resp.Answer)
	assert.NotNil(t, resp.Sources)
	assert.Empty(t, resp.Sources)
}

func TestQuery_StoreUnavailable(t *testing.T) {
	srv := newTestServer(t, &fakeStore{searchErr: vectorstore.ErrCollectionNotFound})

	rec := doJSON(t, srv.Echo(), http.MethodPost, "/query", `{"question": "What is first-line therapy?"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestQuery_InternalError(t *testing.T) {
	srv := newTestServer(t, &fakeStore{searchErr: errors.New("disk on fire")})

	rec := doJSON(t, srv.Echo(), http.MethodPost, "/query", `{"question": "What is first-line therapy?"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	rec := doJSON(t, srv.Echo(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
