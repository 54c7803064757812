package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"realestate-rag/internal/domain"
)

// ChunkStore defines the interface for chunk ledger operations.
type ChunkStore interface {
	// UpsertBatch writes chunks in one transaction. A stored row is only
	// replaced by a record with an equal or later IngestedAt; the IDs of rows
	// actually written are returned.
	UpsertBatch(ctx context.Context, chunks []ChunkRecord) ([]string, error)
	// GetByID gets a chunk by its ID. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*ChunkRecord, error)
	// GetByIDs returns the chunks that exist among ids, in chunk order.
	GetByIDs(ctx context.Context, ids []string) ([]ChunkRecord, error)
	// ListByDocument returns all chunks of a document ordered by chunk_index.
	ListByDocument(ctx context.Context, documentID string) ([]ChunkRecord, error)
	// ListIDsByDocument returns the chunk IDs of a document ordered by chunk_index.
	ListIDsByDocument(ctx context.Context, documentID string) ([]string, error)
	// ListIDsByState returns the IDs of all chunks in the given state.
	ListIDsByState(ctx context.Context, state ChunkState) ([]string, error)
	// SetDocumentState moves every chunk of a document to state.
	SetDocumentState(ctx context.Context, documentID string, state ChunkState) error
	// DeleteByDocument deletes all chunks for a document.
	DeleteByDocument(ctx context.Context, documentID string) error
	// TokenCounts returns the token count of every active chunk.
	TokenCounts(ctx context.Context) ([]int, error)
	// CountByState returns the number of chunks in each state.
	CountByState(ctx context.Context) (map[ChunkState]int, error)
}

// ChunkRepo provides methods for chunk operations.
// It implements the ChunkStore interface.
type ChunkRepo struct {
	db *sql.DB
}

// NewChunkRepo creates a new ChunkRepo.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

const chunkColumns = `id, document_id, chunk_index, block_ids, text, token_count, overlap, page, end_page,
	section, content_type, oversized, vector, embedding_model, state, ingested_at`

// UpsertBatch writes chunks in one transaction and returns the IDs written.
// Rows whose stored ingested_at is later than the incoming record are left untouched.
func (r *ChunkRepo) UpsertBatch(ctx context.Context, chunks []ChunkRecord) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (`+chunkColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		 document_id = excluded.document_id, chunk_index = excluded.chunk_index,
		 block_ids = excluded.block_ids, text = excluded.text, token_count = excluded.token_count,
		 overlap = excluded.overlap, page = excluded.page, end_page = excluded.end_page,
		 section = excluded.section, content_type = excluded.content_type, oversized = excluded.oversized,
		 vector = excluded.vector, embedding_model = excluded.embedding_model,
		 state = excluded.state, ingested_at = excluded.ingested_at
		 WHERE excluded.ingested_at >= chunks.ingested_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare chunk upsert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	var applied []string
	for i := range chunks {
		c := &chunks[i]
		if c.ID == "" {
			return nil, &domain.ValidationError{Field: "id", Message: "cannot be empty"}
		}
		blockIDs, err := json.Marshal(c.BlockIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to encode block ids: %w", err)
		}
		state := c.State
		if state == "" {
			state = ChunkActive
		}
		res, err := stmt.ExecContext(ctx,
			c.ID, c.DocumentID, c.Index, string(blockIDs), c.Text, c.TokenCount, c.Overlap, c.Page, c.EndPage,
			c.Section, string(c.ContentType), c.Oversized, encodeVector(c.Vector), c.EmbeddingModel,
			string(state), c.IngestedAt.UnixNano(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert chunk %s: %w", c.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n > 0 {
			applied = append(applied, c.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit chunk upsert: %w", err)
	}
	return applied, nil
}

// GetByID gets a chunk by its ID. Returns ErrNotFound if not found.
func (r *ChunkRepo) GetByID(ctx context.Context, id string) (*ChunkRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+chunkColumns+" FROM chunks WHERE id = ?", id)
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetByIDs returns the chunks that exist among ids, ordered by document and chunk_index.
func (r *ChunkRepo) GetByIDs(ctx context.Context, ids []string) ([]ChunkRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return r.query(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE id IN ("+placeholders+") ORDER BY document_id, chunk_index",
		args...,
	)
}

// ListByDocument returns all chunks of a document ordered by chunk_index.
func (r *ChunkRepo) ListByDocument(ctx context.Context, documentID string) ([]ChunkRecord, error) {
	return r.query(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE document_id = ? ORDER BY chunk_index",
		documentID,
	)
}

// ListIDsByDocument returns all chunk IDs for a document, ordered by chunk_index.
// Returns an empty slice if no chunks exist (not an error).
func (r *ChunkRepo) ListIDsByDocument(ctx context.Context, documentID string) ([]string, error) {
	return r.queryIDs(ctx, "SELECT id FROM chunks WHERE document_id = ? ORDER BY chunk_index", documentID)
}

// ListIDsByState returns the IDs of all chunks in the given state.
func (r *ChunkRepo) ListIDsByState(ctx context.Context, state ChunkState) ([]string, error) {
	return r.queryIDs(ctx, "SELECT id FROM chunks WHERE state = ? ORDER BY id", string(state))
}

// SetDocumentState moves every chunk of a document to state.
func (r *ChunkRepo) SetDocumentState(ctx context.Context, documentID string, state ChunkState) error {
	_, err := r.db.ExecContext(ctx, "UPDATE chunks SET state = ? WHERE document_id = ?", string(state), documentID)
	if err != nil {
		return fmt.Errorf("failed to update chunk state: %w", err)
	}
	return nil
}

// DeleteByDocument deletes all chunks for a given document ID.
func (r *ChunkRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks by document: %w", err)
	}
	return nil
}

// TokenCounts returns the token count of every active chunk.
func (r *ChunkRepo) TokenCounts(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT token_count FROM chunks WHERE state = ?", string(ChunkActive))
	if err != nil {
		return nil, fmt.Errorf("failed to query token counts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var counts []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan token count: %w", err)
		}
		counts = append(counts, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return counts, nil
}

// CountByState returns the number of chunks in each state. States without
// chunks are absent from the map.
func (r *ChunkRepo) CountByState(ctx context.Context) (map[ChunkState]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT state, COUNT(*) FROM chunks GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	counts := make(map[ChunkState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan chunk count: %w", err)
		}
		counts[ChunkState(state)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return counts, nil
}

func (r *ChunkRepo) query(ctx context.Context, q string, args ...any) ([]ChunkRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var chunks []ChunkRecord
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return chunks, nil
}

func (r *ChunkRepo) queryIDs(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk IDs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return ids, nil
}

func scanChunk(row rowScanner) (*ChunkRecord, error) {
	var (
		c           ChunkRecord
		blockIDs    string
		contentType string
		state       string
		vector      []byte
		ingestedAt  int64
	)
	err := row.Scan(&c.ID, &c.DocumentID, &c.Index, &blockIDs, &c.Text, &c.TokenCount, &c.Overlap, &c.Page, &c.EndPage,
		&c.Section, &contentType, &c.Oversized, &vector, &c.EmbeddingModel, &state, &ingestedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan chunk: %w", err)
	}
	if err := json.Unmarshal([]byte(blockIDs), &c.BlockIDs); err != nil {
		return nil, fmt.Errorf("failed to decode block ids of chunk %s: %w", c.ID, err)
	}
	c.ContentType = domain.ContentType(contentType)
	c.State = ChunkState(state)
	c.Vector = decodeVector(vector)
	c.IngestedAt = time.Unix(0, ingestedAt).UTC()
	return &c, nil
}

// encodeVector packs a vector as little-endian float32s. A nil vector is stored as NULL.
func encodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}
