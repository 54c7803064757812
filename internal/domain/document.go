package domain

import (
	"fmt"
	"time"
)

// DocumentStatus tracks a document through ingestion.
type DocumentStatus string

const (
	StatusPending       DocumentStatus = "pending"
	StatusParsed        DocumentStatus = "parsed"
	StatusIndexed       DocumentStatus = "indexed"
	StatusFailed        DocumentStatus = "failed"
	StatusFailedPartial DocumentStatus = "failed-partial"
)

// Document is a single ingested source. ID is the sha256 of the source bytes.
type Document struct {
	ID             string
	Source         string
	IngestedAt     time.Time
	Status         DocumentStatus
	PageCount      int
	FailedPages    int
	EmbeddingModel string
	Error          string
}

// ContentType is the layout tag of a block.
type ContentType string

const (
	ContentText    ContentType = "text"
	ContentTable   ContentType = "table"
	ContentHeading ContentType = "heading"
)

// Block is a contiguous unit of extracted content. Blocks are immutable once emitted.
type Block struct {
	ID         string
	DocumentID string
	Page       int
	Order      int
	Text       string
	Type       ContentType
}

// BlockID builds the stable identifier of the block at (page, order).
func BlockID(docID string, page, order int) string {
	return fmt.Sprintf("%s:p%d:b%d", docID, page, order)
}

// Chunk is a unit of text sized for embedding.
//
// Overlap counts the leading block segments repeated from the previous chunk of
// the same document; BlockIDs[Overlap:] is the new content.
type Chunk struct {
	ID          string
	DocumentID  string
	Index       int
	BlockIDs    []string
	Text        string
	TokenCount  int
	Overlap     int
	Page        int
	EndPage     int
	Section     string
	ContentType ContentType
	Oversized   bool
}

// EmbeddingRecord is the vector produced for one chunk.
type EmbeddingRecord struct {
	ChunkID   string
	Vector    []float32
	Model     string
	CreatedAt time.Time
}

// IndexEntry is what the index stores for a chunk: vector, text and metadata.
type IndexEntry struct {
	Chunk      Chunk
	Embedding  EmbeddingRecord
	IngestedAt time.Time
}

// ScoredChunk is one retrieval hit after fusion.
type ScoredChunk struct {
	ChunkID      string
	DocumentID   string
	Text         string
	Score        float64
	VectorScore  float64
	LexicalScore float64
	Page         int
	Section      string
	ContentType  ContentType
	Source       string
	IngestedAt   time.Time
	Metadata     map[string]any
}

// RetrievalResult is the ordered list of chunks for one query. It is never persisted.
type RetrievalResult struct {
	Query  string
	Chunks []ScoredChunk
}

// Filters restrict retrieval by metadata. Values are passed to the vector
// backend unchanged; see Range for numeric bounds.
type Filters map[string]any

// Range bounds a numeric metadata field. Nil bounds are open.
type Range struct {
	Gt  *float64
	Gte *float64
	Lt  *float64
	Lte *float64
}
