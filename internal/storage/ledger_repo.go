package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_ledger_store.go -package=mocks realestate-rag/internal/storage LedgerStore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// LedgerStore defines the write-ahead ledger used to keep SQLite and the
// vector backend consistent across crashes.
type LedgerStore interface {
	// Begin records a pending operation and returns its sequence number.
	Begin(ctx context.Context, op LedgerOp, documentID string, chunkIDs []string) (int64, error)
	// Complete marks an entry committed or aborted.
	Complete(ctx context.Context, seq int64, status LedgerStatus) error
	// ListPending returns pending entries in sequence order.
	ListPending(ctx context.Context) ([]LedgerEntry, error)
}

// LedgerRepo provides methods for ledger operations.
// It implements the LedgerStore interface.
type LedgerRepo struct {
	db *sql.DB
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(db *sql.DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

// Begin records a pending operation and returns its sequence number.
func (r *LedgerRepo) Begin(ctx context.Context, op LedgerOp, documentID string, chunkIDs []string) (int64, error) {
	if chunkIDs == nil {
		chunkIDs = []string{}
	}
	ids, err := json.Marshal(chunkIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to encode chunk ids: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO ledger_entries (op, document_id, chunk_ids, status, created_at) VALUES (?, ?, ?, ?, ?)",
		string(op), documentID, string(ids), string(LedgerPending), time.Now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to write ledger entry: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read ledger sequence: %w", err)
	}
	return seq, nil
}

// Complete marks an entry committed or aborted. Returns ErrNotFound for unknown entries.
func (r *LedgerRepo) Complete(ctx context.Context, seq int64, status LedgerStatus) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE ledger_entries SET status = ?, completed_at = ? WHERE seq = ?",
		string(status), time.Now().UnixNano(), seq,
	)
	if err != nil {
		return fmt.Errorf("failed to complete ledger entry: %w", err)
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

// ListPending returns pending entries in sequence order.
func (r *LedgerRepo) ListPending(ctx context.Context) ([]LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT seq, op, document_id, chunk_ids, status, created_at FROM ledger_entries WHERE status = ? ORDER BY seq",
		string(LedgerPending),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []LedgerEntry
	for rows.Next() {
		var (
			e         LedgerEntry
			op        string
			status    string
			chunkIDs  string
			createdAt int64
		)
		if err := rows.Scan(&e.Seq, &op, &e.DocumentID, &chunkIDs, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		if err := json.Unmarshal([]byte(chunkIDs), &e.ChunkIDs); err != nil {
			return nil, fmt.Errorf("failed to decode ledger chunk ids: %w", err)
		}
		e.Op = LedgerOp(op)
		e.Status = LedgerStatus(status)
		e.CreatedAt = time.Unix(0, createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}
