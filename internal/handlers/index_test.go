package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"realestate-rag/internal/domain"
	"realestate-rag/internal/handlers/mocks"
	"realestate-rag/internal/index"
	"realestate-rag/internal/indexer"
)

func TestIndexHandler_Rebuild(t *testing.T) {
	tests := []struct {
		name       string
		report     index.RebuildReport
		err        error
		wantStatus int
	}{
		{
			name:       "success",
			report:     index.RebuildReport{Documents: 2, ChunksEmbedded: 5, Indexed: 2},
			wantStatus: http.StatusOK,
		},
		{
			name:       "embedding service unavailable",
			err:        &domain.EmbeddingServiceError{Indexes: []int{0}, Attempts: 3, Err: domain.ErrExternalService},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "cancelled",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			svc := mocks.NewMockIndexService(ctrl)
			svc.EXPECT().Rebuild(gomock.Any()).Return(tt.report, tt.err)
			h := NewIndexHandler(svc)

			w := httptest.NewRecorder()
			h.Rebuild(w, httptest.NewRequest(http.MethodPost, "/api/v1/index/rebuild", nil))

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.err == nil {
				var got index.RebuildReport
				require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
				assert.Equal(t, tt.report, got)
			}
		})
	}
}

func TestIndexHandler_Stats(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc := mocks.NewMockIndexService(ctrl)
		svc.EXPECT().Stats(gomock.Any()).Return(&indexer.IndexStats{
			Documents:      map[domain.DocumentStatus]int{domain.StatusIndexed: 3},
			DocumentsTotal: 3,
			ChunksActive:   12,
			Vectors:        12,
			ChunkerVersion: "v2.0",
			IndexVersion:   "0123456789abcdef",
		}, nil)
		h := NewIndexHandler(svc)

		w := httptest.NewRecorder()
		h.Stats(w, httptest.NewRequest(http.MethodGet, "/api/v1/index/stats", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var got map[string]any
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		assert.Equal(t, float64(12), got["chunks_active"])
		assert.Equal(t, "0123456789abcdef", got["index_version"])
		assert.Equal(t, map[string]any{"indexed": float64(3)}, got["documents"])
	})

	t.Run("failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc := mocks.NewMockIndexService(ctrl)
		svc.EXPECT().Stats(gomock.Any()).Return(nil, errors.New("database is locked"))
		h := NewIndexHandler(svc)

		w := httptest.NewRecorder()
		h.Stats(w, httptest.NewRequest(http.MethodGet, "/api/v1/index/stats", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		var resp ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "Failed to compute index stats", resp.Error)
	})
}
