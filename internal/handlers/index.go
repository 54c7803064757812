package handlers

import (
	"context"
	"net/http"

	"realestate-rag/internal/contextutil"
	"realestate-rag/internal/index"
	"realestate-rag/internal/indexer"
)

// IndexService rebuilds and describes the index.
type IndexService interface {
	Rebuild(ctx context.Context) (index.RebuildReport, error)
	Stats(ctx context.Context) (*indexer.IndexStats, error)
}

// IndexHandler handles HTTP requests for index maintenance.
type IndexHandler struct {
	index IndexService
}

// NewIndexHandler creates a new IndexHandler.
func NewIndexHandler(idx IndexService) *IndexHandler {
	return &IndexHandler{index: idx}
}

// Rebuild handles POST /api/v1/index/rebuild. It re-embeds documents that
// are failed-partial or were embedded with another model, and returns once
// the run is over.
func (h *IndexHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	logger.InfoContext(ctx, "rebuild triggered via API")
	report, err := h.index.Rebuild(ctx)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to rebuild index")
		return
	}
	logger.InfoContext(ctx, "rebuild completed",
		"documents", report.Documents,
		"chunks_embedded", report.ChunksEmbedded,
		"chunks_failed", report.ChunksFailed,
	)
	writeJSON(w, ctx, http.StatusOK, report)
}

// Stats handles GET /api/v1/index/stats.
func (h *IndexHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.index.Stats(ctx)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to compute index stats")
		return
	}
	writeJSON(w, ctx, http.StatusOK, stats)
}
