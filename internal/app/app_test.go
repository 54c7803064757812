package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realestate-rag/internal/config"
	"realestate-rag/internal/domain"
	"realestate-rag/internal/llm"
)

// embeddingServer answers every input with the same two-dimensional vector.
func embeddingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req llm.EmbeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		resp := llm.EmbeddingsResponse{}
		for range req.Input {
			resp.Data = append(resp.Data, llm.EmbeddingData{Embedding: []float64{0.6, 0.8}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, embeddingURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	pipeline := config.DefaultPipeline()
	pipeline.MaxRetryAttempts = 1
	pipeline.ServiceTimeoutSeconds = 5
	return &config.Config{
		LogLevel:         "debug",
		LogFormat:        "text",
		LLMBaseURL:       "http://127.0.0.1:1",
		EmbeddingBaseURL: embeddingURL,
		EmbeddingModelID: "embed-test",
		EmbeddingDim:     2,
		DBPath:           filepath.Join(dir, "rag.db"),
		DataDir:          filepath.Join(dir, "documents"),
		VectorBackend:    config.BackendMemory,
		QdrantCollection: "test",
		Pipeline:         pipeline,
	}
}

func TestApp_EndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, embeddingServer(t).URL)

	a, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.NoError(t, a.EnsureDataDir())
	require.NoError(t, a.CheckEmbedder(ctx))
	require.NoError(t, a.Start(ctx, true))

	listing := filepath.Join(cfg.DataDir, "oak.md")
	require.NoError(t, os.WriteFile(listing, []byte("# 12 Oak St\n\nThree bedroom house on a quarter acre lot."), 0o644))
	res, err := a.Pipeline.IngestDocument(ctx, listing)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIndexed, res.Status)

	router := a.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var docs struct {
		Documents []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"documents"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&docs))
	require.Len(t, docs.Documents, 1)
	assert.Equal(t, res.DocumentID, docs.Documents[0].ID)
	assert.Equal(t, "indexed", docs.Documents[0].Status)

	n, err := a.Index.Count(ctx)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestApp_CheckEmbedderDimensionMismatch(t *testing.T) {
	cfg := testConfig(t, embeddingServer(t).URL)
	cfg.EmbeddingDim = 3

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.ErrorIs(t, a.CheckEmbedder(context.Background()), domain.ErrDimensionMismatch)
}

func TestApp_CloseIsIdempotent(t *testing.T) {
	a, err := New(context.Background(), testConfig(t, "http://127.0.0.1:1"))
	require.NoError(t, err)
	require.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		format     string
		wantDebug  bool
		wantPrefix string
	}{
		{name: "text info", level: "info", format: "text", wantPrefix: "time="},
		{name: "json debug", level: "debug", format: "json", wantDebug: true, wantPrefix: "{"},
		{name: "unknown level falls back to info", level: "verbose", format: "text", wantPrefix: "time="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&config.Config{LogLevel: tt.level, LogFormat: tt.format}, &buf)

			assert.Equal(t, tt.wantDebug, logger.Enabled(context.Background(), -4))
			logger.Info("hello")
			assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte(tt.wantPrefix)), buf.String())
		})
	}
}
