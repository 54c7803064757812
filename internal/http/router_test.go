package http

import (
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"realestate-rag/internal/domain"
	handlermocks "realestate-rag/internal/handlers/mocks"
	"realestate-rag/internal/index"
	"realestate-rag/internal/indexer"
	"realestate-rag/internal/rag"
	ragmocks "realestate-rag/internal/rag/mocks"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	ctrl := gomock.NewController(t)

	retriever := ragmocks.NewMockChunkRetriever(ctrl)
	retriever.EXPECT().Retrieve(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.RetrievalResult{Chunks: []domain.ScoredChunk{
			{ChunkID: "c1", DocumentID: "d1", Source: "oak.pdf", Page: 1, Text: "Built in 1962.", Score: 0.8},
		}}, nil).AnyTimes()
	generator := ragmocks.NewMockGenerator(ctrl)
	generator.EXPECT().Stream(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(iter.Seq2[string, error](func(yield func(string, error) bool) {
			yield("Built in 1962 [1].", nil)
		})).AnyTimes()

	docs := handlermocks.NewMockDocumentService(ctrl)
	docs.EXPECT().Documents(gomock.Any()).Return([]domain.Document{}, nil).AnyTimes()
	docs.EXPECT().Delete(gomock.Any(), "d1").Return(nil).AnyTimes()

	idx := handlermocks.NewMockIndexService(ctrl)
	idx.EXPECT().Rebuild(gomock.Any()).Return(index.RebuildReport{}, nil).AnyTimes()
	idx.EXPECT().Stats(gomock.Any()).Return(&indexer.IndexStats{}, nil).AnyTimes()

	vectors := handlermocks.NewMockVectorCounter(ctrl)
	vectors.EXPECT().Count(gomock.Any()).Return(1, nil).AnyTimes()

	return NewRouter(&Deps{
		Answers:   rag.NewOrchestrator(retriever, generator, rag.OrchestratorConfig{K: 5}),
		Documents: docs,
		Index:     idx,
		Vectors:   vectors,
		DataDir:   t.TempDir(),
	})
}

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{name: "health", method: http.MethodGet, path: "/api/health", wantStatus: http.StatusOK},
		{name: "ask", method: http.MethodPost, path: "/api/v1/ask", body: `{"question":"When was it built?"}`, wantStatus: http.StatusOK},
		{name: "ask with invalid body", method: http.MethodPost, path: "/api/v1/ask", body: "{", wantStatus: http.StatusBadRequest},
		{name: "ask wrong method", method: http.MethodGet, path: "/api/v1/ask", wantStatus: http.StatusMethodNotAllowed},
		{name: "ingest without source", method: http.MethodPost, path: "/api/v1/documents", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "list documents", method: http.MethodGet, path: "/api/v1/documents", wantStatus: http.StatusOK},
		{name: "delete document", method: http.MethodDelete, path: "/api/v1/documents/d1", wantStatus: http.StatusNoContent},
		{name: "rebuild", method: http.MethodPost, path: "/api/v1/index/rebuild", wantStatus: http.StatusOK},
		{name: "stats", method: http.MethodGet, path: "/api/v1/index/stats", wantStatus: http.StatusOK},
		{name: "unknown route", method: http.MethodGet, path: "/api/v1/unknown", wantStatus: http.StatusNotFound},
		{name: "preflight", method: http.MethodOptions, path: "/api/v1/ask", wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("%s %s status = %v, want %v (body %q)", tt.method, tt.path, w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestRouter_StreamThroughMiddleware(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask?stream=true", strings.NewReader(`{"question":"When was it built?"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %v, want %v (body %q)", w.Code, http.StatusOK, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if !strings.HasSuffix(w.Body.String(), "data: [DONE]\n\n") {
		t.Errorf("stream should end with [DONE], got %q", w.Body.String())
	}
}

func TestRouter_MiddlewareApplied(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("Router should apply CORS middleware")
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("Router should set a request id")
	}
}
