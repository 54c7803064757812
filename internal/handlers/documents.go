package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"realestate-rag/internal/contextutil"
	"realestate-rag/internal/domain"
	"realestate-rag/internal/indexer"
)

const maxUploadBytes = 64 << 20

// DocumentService ingests, lists and deletes documents.
type DocumentService interface {
	IngestDocument(ctx context.Context, source string) (*indexer.IngestResult, error)
	Documents(ctx context.Context) ([]domain.Document, error)
	Delete(ctx context.Context, docID string) error
}

// DocumentsHandler handles HTTP requests for the document collection.
type DocumentsHandler struct {
	docs    DocumentService
	dataDir string
}

// NewDocumentsHandler creates a new DocumentsHandler. Local sources must live
// under dataDir; uploads are stored in dataDir/uploads.
func NewDocumentsHandler(docs DocumentService, dataDir string) *DocumentsHandler {
	return &DocumentsHandler{docs: docs, dataDir: dataDir}
}

// IngestRequest represents the JSON payload for ingesting a source.
type IngestRequest struct {
	// Local path (relative to the data directory) or gs:// URI
	Source string `json:"source"`
}

// DocumentResponse describes a stored document.
//
// swagger:model DocumentResponse
type DocumentResponse struct {
	ID             string                `json:"id"`
	Source         string                `json:"source"`
	Status         domain.DocumentStatus `json:"status"`
	IngestedAt     string                `json:"ingested_at"`
	PageCount      int                   `json:"page_count"`
	FailedPages    int                   `json:"failed_pages"`
	EmbeddingModel string                `json:"embedding_model,omitempty"`
	Error          string                `json:"error,omitempty"`
}

// ListDocumentsResponse is the response of the document listing.
type ListDocumentsResponse struct {
	Documents []DocumentResponse `json:"documents"`
}

// Ingest handles POST /api/v1/documents. The body is either JSON naming a
// source or a multipart form with a "file" field.
func (h *DocumentsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var source string
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		source, err = h.saveUpload(w, r)
	} else {
		source, err = h.decodeSource(w, r)
	}
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to read request")
		return
	}

	logger.InfoContext(ctx, "ingest requested", "source", source)
	res, err := h.docs.IngestDocument(ctx, source)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to ingest document")
		return
	}

	status := http.StatusCreated
	if res.Skipped {
		status = http.StatusOK
	}
	writeJSON(w, ctx, status, res)
}

func (h *DocumentsHandler) decodeSource(w http.ResponseWriter, r *http.Request) (string, error) {
	var req IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBodyBytes)).Decode(&req); err != nil {
		return "", &domain.ValidationError{Field: "body", Message: "invalid JSON"}
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		return "", &domain.ValidationError{Field: "source", Message: "cannot be empty"}
	}
	if strings.HasPrefix(source, "gs://") {
		return source, nil
	}
	return h.resolveLocal(source)
}

// resolveLocal maps a local source to an absolute path inside the data directory.
func (h *DocumentsHandler) resolveLocal(source string) (string, error) {
	root, err := filepath.Abs(h.dataDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve data directory: %w", err)
	}
	path := source
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &domain.ValidationError{Field: "source", Message: "must be inside the data directory"}
	}
	return path, nil
}

// saveUpload stores the uploaded file under dataDir/uploads and returns its path.
func (h *DocumentsHandler) saveUpload(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", &domain.ValidationError{Field: "file", Message: "missing or unreadable upload"}
	}
	defer func() {
		_ = file.Close()
	}()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, ".") {
		return "", &domain.ValidationError{Field: "file", Message: "invalid file name"}
	}

	dir := filepath.Join(h.dataDir, "uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	dest, err := filepath.Abs(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to resolve upload path: %w", err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return dest, nil
}

// List handles GET /api/v1/documents.
func (h *DocumentsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docs, err := h.docs.Documents(ctx)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to list documents")
		return
	}

	resp := ListDocumentsResponse{Documents: make([]DocumentResponse, 0, len(docs))}
	for _, d := range docs {
		resp.Documents = append(resp.Documents, DocumentResponse{
			ID:             d.ID,
			Source:         d.Source,
			Status:         d.Status,
			IngestedAt:     d.IngestedAt.UTC().Format(time.RFC3339),
			PageCount:      d.PageCount,
			FailedPages:    d.FailedPages,
			EmbeddingModel: d.EmbeddingModel,
			Error:          d.Error,
		})
	}
	writeJSON(w, ctx, http.StatusOK, resp)
}

// Delete handles DELETE /api/v1/documents/{id}.
func (h *DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing document id")
		return
	}

	if err := h.docs.Delete(ctx, id); err != nil {
		handleServiceError(w, ctx, err, "Failed to delete document")
		return
	}
	logger.InfoContext(ctx, "document deleted", "document_id", id)
	w.WriteHeader(http.StatusNoContent)
}
