package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"

	"realestate-rag/internal/chunker"
	"realestate-rag/internal/domain"
	"realestate-rag/internal/storage"
)

// IndexStats describes the current state of the index.
type IndexStats struct {
	// Documents counts documents per ingestion status.
	Documents map[domain.DocumentStatus]int `json:"documents"`
	// DocumentsTotal is the number of known documents.
	DocumentsTotal int `json:"documents_total"`
	// ChunksActive is the number of chunks with a vector in the index.
	ChunksActive int `json:"chunks_active"`
	// ChunksUnembedded is the number of chunks waiting for a rebuild.
	ChunksUnembedded int `json:"chunks_unembedded"`
	// ChunksTombstoned is the number of chunks of documents being deleted.
	ChunksTombstoned int `json:"chunks_tombstoned"`
	// Vectors is the number of points reported by the vector backend.
	Vectors int `json:"vectors"`
	// ChunkTokenStats summarises token counts of active chunks.
	ChunkTokenStats ChunkTokenStats `json:"chunk_token_stats"`
	ChunkerVersion  string          `json:"chunker_version"`
	EmbeddingModel  string          `json:"embedding_model"`
	// IndexVersion identifies the index build (chunker, embedding model and chunking params).
	IndexVersion string `json:"index_version"`
}

// ChunkTokenStats contains statistics about token counts in chunks.
type ChunkTokenStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

// Stats computes index statistics from the stores and the vector backend.
func (p *Pipeline) Stats(ctx context.Context) (*IndexStats, error) {
	model := p.embedder.ModelName()
	stats := &IndexStats{
		Documents:      make(map[domain.DocumentStatus]int),
		ChunkerVersion: chunker.Version,
		EmbeddingModel: model,
		IndexVersion:   IndexVersion(model, p.cfg.MaxTokensPerChunk, p.cfg.ChunkOverlapRatio),
	}

	docs, err := p.docs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	for _, d := range docs {
		stats.Documents[d.Status]++
	}
	stats.DocumentsTotal = len(docs)

	byState, err := p.chunks.CountByState(ctx)
	if err != nil {
		return nil, err
	}
	stats.ChunksActive = byState[storage.ChunkActive]
	stats.ChunksUnembedded = byState[storage.ChunkUnembedded]
	stats.ChunksTombstoned = byState[storage.ChunkTombstoned]

	counts, err := p.chunks.TokenCounts(ctx)
	if err != nil {
		return nil, err
	}
	stats.ChunkTokenStats = computeTokenStats(counts)

	vectors, err := p.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count vectors: %w", err)
	}
	stats.Vectors = vectors

	return stats, nil
}

// IndexVersion returns a short hash of the settings that determine index content.
func IndexVersion(model string, maxTokens int, overlap float64) string {
	input := fmt.Sprintf("%s|%s|maxTokens=%d|overlap=%.3f", chunker.Version, model, maxTokens, overlap)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}

// computeTokenStats computes min, max, mean, and p95 from token counts.
func computeTokenStats(tokenCounts []int) ChunkTokenStats {
	if len(tokenCounts) == 0 {
		return ChunkTokenStats{}
	}

	sorted := make([]int, len(tokenCounts))
	copy(sorted, tokenCounts)
	sort.Ints(sorted)

	sum := 0
	for _, count := range tokenCounts {
		sum += count
	}
	mean := float64(sum) / float64(len(tokenCounts))

	p95Index := int(math.Ceil(float64(len(sorted)) * 0.95))
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}

	return ChunkTokenStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100,
		P95:  sorted[p95Index],
	}
}
