package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_rag.go -package=mocks realestate-rag/internal/rag QueryEmbedder,Index,ChunkRetriever,Generator

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"

	"realestate-rag/internal/contextutil"
	"realestate-rag/internal/domain"
	"realestate-rag/internal/index"
	"realestate-rag/internal/vectorstore"
)

// QueryEmbedder embeds query text.
type QueryEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is the read side of the index manager used at query time.
type Index interface {
	Count(ctx context.Context) (int, error)
	Search(ctx context.Context, query []float32, k int, filters map[string]any) ([]vectorstore.SearchResult, error)
	BeginQuery() func()
	IsTombstoned(docID string) bool
}

// RetrieverConfig holds retrieval tuning.
type RetrieverConfig struct {
	// K is the default number of results.
	K int
	// CandidatePool is the number of nearest neighbours re-ranked per query.
	// It is raised above k when configured too small.
	CandidatePool int
	VectorWeight  float64
	LexicalWeight float64
}

// Retriever finds the chunks most relevant to a query.
type Retriever struct {
	embedder QueryEmbedder
	index    Index
	cfg      RetrieverConfig
}

// NewRetriever creates a Retriever. Zero weights default to 0.8 vector / 0.2 lexical.
func NewRetriever(embedder QueryEmbedder, idx Index, cfg RetrieverConfig) *Retriever {
	if cfg.K <= 0 {
		cfg.K = 5
	}
	if cfg.VectorWeight == 0 && cfg.LexicalWeight == 0 {
		cfg.VectorWeight, cfg.LexicalWeight = 0.8, 0.2
	}
	return &Retriever{embedder: embedder, index: idx, cfg: cfg}
}

// candidatePool returns the number of neighbours to fetch for k results.
func (r *Retriever) candidatePool(k int) int {
	n := r.cfg.CandidatePool
	if n <= k {
		n = 2 * k
	}
	return n
}

// Retrieve embeds query, fetches candidates under filters, re-ranks them by
// fused score and returns the top k. Ties are broken by newer ingestion first,
// then by chunk id. Chunks of tombstoned documents are never returned.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, filters domain.Filters) (domain.RetrievalResult, error) {
	logger := contextutil.LoggerFromContext(ctx)
	result := domain.RetrievalResult{Query: query}

	if strings.TrimSpace(query) == "" {
		return result, &domain.ValidationError{Field: "question", Message: "cannot be empty"}
	}
	if k <= 0 {
		k = r.cfg.K
	}

	count, err := r.index.Count(ctx)
	if err != nil {
		return result, &domain.RetrievalError{Reason: "index unavailable", Err: err}
	}
	if count == 0 {
		return result, &domain.RetrievalError{Reason: "empty index", Err: domain.ErrEmptyIndex}
	}

	vectors, err := r.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, &domain.RetrievalError{Reason: "query embedding failed", Err: err}
	}
	if len(vectors) != 1 {
		return result, &domain.RetrievalError{Reason: "query embedding failed", Err: domain.ErrExternalService}
	}

	done := r.index.BeginQuery()
	defer done()

	n := r.candidatePool(k)
	hits, err := r.index.Search(ctx, vectors[0], n, filters)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) || ctx.Err() != nil {
			return result, err
		}
		return result, &domain.RetrievalError{Reason: "vector search failed", Err: err}
	}

	chunks := make([]domain.ScoredChunk, 0, len(hits))
	dropped := 0
	for _, hit := range hits {
		sc := index.ScoredChunkFromPayload(hit.PointID, hit.Score, hit.Meta)
		if r.index.IsTombstoned(sc.DocumentID) {
			dropped++
			continue
		}
		sc.LexicalScore = lexicalScore(query, sc.Text, sc.Section)
		sc.Score = r.cfg.VectorWeight*sc.VectorScore + r.cfg.LexicalWeight*sc.LexicalScore
		chunks = append(chunks, sc)
	}

	slices.SortFunc(chunks, compareScored)
	if len(chunks) > k {
		chunks = chunks[:k]
	}
	result.Chunks = chunks

	logger.InfoContext(ctx, "retrieval completed",
		"k", k,
		"candidates", len(hits),
		"tombstoned_dropped", dropped,
		"returned", len(chunks),
	)
	if len(chunks) > 0 {
		logger.DebugContext(ctx, "top retrieval result",
			"chunk_id", chunks[0].ChunkID,
			"score", chunks[0].Score,
			"vector_score", chunks[0].VectorScore,
			"lexical_score", chunks[0].LexicalScore,
		)
	}
	return result, nil
}

// compareScored orders by fused score desc, ingestion time desc, chunk id asc.
func compareScored(a, b domain.ScoredChunk) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := b.IngestedAt.Compare(a.IngestedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ChunkID, b.ChunkID)
}
