package http_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/evidenced/internal/telemetry"
	"github.com/fyrsmithlabs/evidenced/internal/vectorstore"
)

// Request metrics must land in the Prometheus registry behind /metrics,
// which only happens when the meter provider is installed before the
// server creates its instruments.
func TestMetricsReachPrometheusRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	tel, err := telemetry.Setup(reg, zap.NewNop())
	require.NoError(t, err)
	defer tel.Shutdown(context.Background()) //nolint:errcheck

	srv := newTestServer(t, &fakeStore{results: []vectorstore.SearchResult{retrievedChunk()}})

	for i := 0; i < 3; i++ {
		rec := doJSON(t, srv.Echo(), http.MethodPost, "/query", `{"question": "What is first-line therapy for CKD?"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	families, err := reg.Gather()
	require.NoError(t, err)

	var sawCounter, sawHistogram bool
	for _, mf := range families {
		name := mf.GetName()
		if strings.HasPrefix(name, "evidenced_http_requests") {
			sawCounter = true
			require.NotEmpty(t, mf.GetMetric())
			assert.InDelta(t, 3, mf.GetMetric()[0].GetCounter().GetValue(), 0.01)
		}
		if strings.HasPrefix(name, "evidenced_http_request_duration") {
			sawHistogram = true
		}
	}
	assert.True(t, sawCounter, "request counter missing from exposition")
	assert.True(t, sawHistogram, "duration histogram missing from exposition")
}
