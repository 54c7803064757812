package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_document_store.go -package=mocks realestate-rag/internal/storage DocumentStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"realestate-rag/internal/domain"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = fmt.Errorf("record %w", domain.ErrNotFound)
)

// DocumentStore defines the interface for document ledger operations.
type DocumentStore interface {
	// Upsert inserts a document or replaces the stored row with the same ID.
	Upsert(ctx context.Context, doc *domain.Document) error
	// UpdateStatus records a status transition. Returns ErrNotFound for unknown IDs.
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMsg string) error
	// GetByID gets a document by its ID. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	// GetBySource returns the most recently ingested document for a source.
	GetBySource(ctx context.Context, source string) (*domain.Document, error)
	// List returns all documents ordered by ingestion time.
	List(ctx context.Context) ([]domain.Document, error)
	// ListForRebuild returns failed-partial documents and indexed documents
	// embedded with a model other than model.
	ListForRebuild(ctx context.Context, model string) ([]domain.Document, error)
	// Delete removes a document row.
	Delete(ctx context.Context, id string) error
}

// DocumentRepo provides methods for document operations.
// It implements the DocumentStore interface.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

const documentColumns = "id, source, status, error, page_count, failed_pages, embedding_model, ingested_at"

// Upsert inserts a document or replaces the stored row with the same ID.
// A zero IngestedAt is set to now.
func (r *DocumentRepo) Upsert(ctx context.Context, doc *domain.Document) error {
	if doc.ID == "" {
		return &domain.ValidationError{Field: "id", Message: "cannot be empty"}
	}
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = time.Now().UTC()
	}
	now := time.Now().UnixNano()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (id, source, status, error, page_count, failed_pages, embedding_model, ingested_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		 source = excluded.source, status = excluded.status, error = excluded.error,
		 page_count = excluded.page_count, failed_pages = excluded.failed_pages,
		 embedding_model = excluded.embedding_model, ingested_at = excluded.ingested_at,
		 updated_at = excluded.updated_at`,
		doc.ID, doc.Source, string(doc.Status), doc.Error, doc.PageCount, doc.FailedPages,
		doc.EmbeddingModel, doc.IngestedAt.UnixNano(), now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// UpdateStatus records a status transition. Returns ErrNotFound for unknown IDs.
func (r *DocumentRepo) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMsg string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE documents SET status = ?, error = ?, updated_at = ? WHERE id = ?",
		string(status), errMsg, time.Now().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID gets a document by its ID. Returns ErrNotFound if not found.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	return scanDocument(row)
}

// GetBySource returns the most recently ingested document for a source.
// Returns ErrNotFound if the source was never ingested.
func (r *DocumentRepo) GetBySource(ctx context.Context, source string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE source = ? ORDER BY ingested_at DESC LIMIT 1",
		source,
	)
	return scanDocument(row)
}

// List returns all documents ordered by ingestion time.
func (r *DocumentRepo) List(ctx context.Context) ([]domain.Document, error) {
	return r.query(ctx, "SELECT "+documentColumns+" FROM documents ORDER BY ingested_at, id")
}

// ListForRebuild returns failed-partial documents and indexed documents
// embedded with a model other than model.
func (r *DocumentRepo) ListForRebuild(ctx context.Context, model string) ([]domain.Document, error) {
	return r.query(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE status = ? OR (status = ? AND embedding_model != ?) ORDER BY ingested_at, id",
		string(domain.StatusFailedPartial), string(domain.StatusIndexed), model,
	)
}

// Delete removes a document row. Deleting a missing row is not an error.
func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (r *DocumentRepo) query(ctx context.Context, q string, args ...any) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return docs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc        domain.Document
		status     string
		ingestedAt int64
	)
	err := row.Scan(&doc.ID, &doc.Source, &status, &doc.Error, &doc.PageCount, &doc.FailedPages, &doc.EmbeddingModel, &ingestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	doc.Status = domain.DocumentStatus(status)
	doc.IngestedAt = time.Unix(0, ingestedAt).UTC()
	return &doc, nil
}
