package storage

import (
	"time"

	"realestate-rag/internal/domain"
)

// ChunkState is the lifecycle state of a stored chunk.
type ChunkState string

const (
	// ChunkActive chunks have a vector and are expected in the vector backend.
	ChunkActive ChunkState = "active"
	// ChunkUnembedded chunks failed embedding and wait for a rebuild.
	ChunkUnembedded ChunkState = "unembedded"
	// ChunkTombstoned chunks belong to a document being deleted.
	ChunkTombstoned ChunkState = "tombstoned"
)

// ChunkRecord is the ledger copy of an index entry: the chunk, its vector and
// the ingestion timestamp that orders concurrent writes.
type ChunkRecord struct {
	domain.Chunk
	Vector         []float32
	EmbeddingModel string
	State          ChunkState
	IngestedAt     time.Time
}

// LedgerOp is the kind of write recorded ahead of a vector backend call.
type LedgerOp string

const (
	OpUpsert LedgerOp = "upsert"
	OpDelete LedgerOp = "delete"
	// OpWithdraw removes vectors of chunks that lost their embedding but stay stored.
	OpWithdraw LedgerOp = "withdraw"
)

// LedgerStatus is the outcome of a ledger entry.
type LedgerStatus string

const (
	LedgerPending   LedgerStatus = "pending"
	LedgerCommitted LedgerStatus = "committed"
	LedgerAborted   LedgerStatus = "aborted"
)

// LedgerEntry is one write-ahead record. Entries left pending after a crash
// are replayed on startup.
type LedgerEntry struct {
	Seq         int64
	Op          LedgerOp
	DocumentID  string
	ChunkIDs    []string
	Status      LedgerStatus
	CreatedAt   time.Time
	CompletedAt *time.Time
}
