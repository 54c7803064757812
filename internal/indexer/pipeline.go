package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"realestate-rag/internal/chunker"
	"realestate-rag/internal/contextutil"
	"realestate-rag/internal/domain"
	"realestate-rag/internal/index"
	"realestate-rag/internal/loader"
	"realestate-rag/internal/storage"
)

// Config holds ingestion settings.
type Config struct {
	MaxTokensPerChunk int
	ChunkOverlapRatio float64
	// Concurrency bounds how many documents are ingested at once.
	Concurrency int
}

// Pipeline orchestrates ingestion: load, chunk, embed and index.
type Pipeline struct {
	loader   *loader.Loader
	chunker  *chunker.Chunker
	embedder index.Embedder
	index    *index.Manager
	docs     storage.DocumentStore
	chunks   storage.ChunkStore
	cfg      Config
	now      func() time.Time
	inflight singleflight.Group
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	l *loader.Loader,
	embedder index.Embedder,
	idx *index.Manager,
	docs storage.DocumentStore,
	chunks storage.ChunkStore,
	cfg Config,
) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Pipeline{
		loader:   l,
		chunker:  chunker.New(cfg.MaxTokensPerChunk, cfg.ChunkOverlapRatio),
		embedder: embedder,
		index:    idx,
		docs:     docs,
		chunks:   chunks,
		cfg:      cfg,
		now:      time.Now,
	}
}

// IngestResult describes the outcome of ingesting one source.
type IngestResult struct {
	Source         string                `json:"source"`
	DocumentID     string                `json:"document_id"`
	Status         domain.DocumentStatus `json:"status"`
	Skipped        bool                  `json:"skipped,omitempty"`
	Replaced       string                `json:"replaced,omitempty"`
	Chunks         int                   `json:"chunks"`
	ChunksEmbedded int                   `json:"chunks_embedded"`
	ChunksFailed   int                   `json:"chunks_failed"`
	FailedPages    int                   `json:"failed_pages"`
}

// IngestDocument ingests a single source.
// Content that is already indexed with the current embedding model is skipped.
// When the source previously held different content, the old document is
// deleted once the new one is indexed. Per-page parse failures and per-chunk
// embedding failures leave the document failed-partial; only a document with
// no usable content returns an error.
//
// Concurrent calls for identical content share a single ingestion.
func (p *Pipeline) IngestDocument(ctx context.Context, source string) (*IngestResult, error) {
	source, err := loader.NormalizeSource(source)
	if err != nil {
		return nil, err
	}
	if !loader.Supported(source) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedSource, source)
	}
	raw, err := p.loader.Read(ctx, source)
	if err != nil {
		return nil, err
	}
	docID := loader.DocumentID(raw)

	v, err, shared := p.inflight.Do(docID, func() (any, error) {
		return p.ingest(ctx, source, docID, raw)
	})
	res, _ := v.(*IngestResult)
	if shared && res != nil {
		cp := *res
		res = &cp
	}
	return res, err
}

func (p *Pipeline) ingest(ctx context.Context, source, docID string, raw []byte) (*IngestResult, error) {
	logger := contextutil.LoggerFromContext(ctx).With("source", source)
	model := p.embedder.ModelName()
	res := &IngestResult{Source: source, DocumentID: docID}

	existing, err := p.docs.GetByID(ctx, docID)
	switch {
	case err == nil:
		if upToDate(existing, model) {
			logger.DebugContext(ctx, "skipping unchanged document", "document_id", docID, "status", existing.Status)
			res.Status, res.Skipped = existing.Status, true
			return res, nil
		}
		// Stale or failed copy of the same content; start from a clean slate.
		if err := p.index.Delete(ctx, docID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("failed to clear previous copy: %w", err)
		}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("failed to check existing document: %w", err)
	}

	var previousID string
	if prev, err := p.docs.GetBySource(ctx, source); err == nil && prev.ID != docID {
		previousID = prev.ID
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up source: %w", err)
	}

	loaded, err := p.loader.LoadBytes(ctx, source, raw)
	if err != nil {
		if loaded != nil && loaded.Document != nil {
			res.Status = loaded.Document.Status
		}
		return res, err
	}
	doc := loaded.Document
	res.FailedPages = doc.FailedPages

	chunks, err := p.chunker.Split(doc.ID, loaded.Blocks)
	if err != nil {
		return res, fmt.Errorf("failed to chunk document: %w", err)
	}
	res.Chunks = len(chunks)

	embedded, failed, err := p.embed(ctx, chunks)
	if err != nil {
		return res, err
	}
	ingestedAt := p.now()

	vectors := make([][]float32, len(embedded))
	okChunks := make([]domain.Chunk, len(embedded))
	for i, e := range embedded {
		okChunks[i], vectors[i] = e.chunk, e.vector
	}
	if err := p.index.Upsert(ctx, okChunks, vectors, model, ingestedAt); err != nil {
		return res, fmt.Errorf("failed to index chunks: %w", err)
	}
	if err := p.index.RecordUnembedded(ctx, failed, ingestedAt); err != nil {
		return res, fmt.Errorf("failed to record unembedded chunks: %w", err)
	}
	res.ChunksEmbedded, res.ChunksFailed = len(okChunks), len(failed)

	doc.EmbeddingModel = model
	doc.IngestedAt = ingestedAt
	if len(failed) == 0 && len(loaded.PageErrors) == 0 {
		doc.Status = domain.StatusIndexed
		doc.Error = ""
	} else {
		doc.Status = domain.StatusFailedPartial
		if len(failed) > 0 {
			doc.Error = joinErr(doc.Error, fmt.Sprintf("%d of %d chunk(s) not embedded", len(failed), len(chunks)))
		}
	}
	if err := p.docs.Upsert(ctx, doc); err != nil {
		return res, fmt.Errorf("failed to record document status: %w", err)
	}
	res.Status = doc.Status

	if previousID != "" {
		if err := p.index.Delete(ctx, previousID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			logger.WarnContext(ctx, "failed to remove replaced document", "document_id", previousID, "error", err)
		} else {
			res.Replaced = previousID
		}
	}

	logger.InfoContext(ctx, "document ingested",
		"document_id", doc.ID,
		"status", doc.Status,
		"chunks", len(chunks),
		"chunks_failed", len(failed),
		"failed_pages", doc.FailedPages,
	)
	return res, nil
}

type embeddedChunk struct {
	chunk  domain.Chunk
	vector []float32
}

// embed returns the chunks that received a vector and those that did not.
func (p *Pipeline) embed(ctx context.Context, chunks []domain.Chunk) ([]embeddedChunk, []domain.Chunk, error) {
	if len(chunks) == 0 {
		return nil, nil, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	batch, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if batch.Err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "some chunks were not embedded",
			"failed", len(batch.Err.Indexes),
			"attempts", batch.Err.Attempts,
			"error", batch.Err.Err,
		)
	}

	var ok []embeddedChunk
	var failed []domain.Chunk
	for i, c := range chunks {
		if batch.Failed(i) {
			failed = append(failed, c)
			continue
		}
		ok = append(ok, embeddedChunk{chunk: c, vector: batch.Vectors[i]})
	}
	return ok, failed, nil
}

// IngestReport summarises a multi-document run.
type IngestReport struct {
	Total   int             `json:"total"`
	Indexed int             `json:"indexed"`
	Partial int             `json:"partial"`
	Skipped int             `json:"skipped"`
	Failed  int             `json:"failed"`
	Results []*IngestResult `json:"results"`
}

// IngestAll ingests sources with bounded concurrency. Failures of individual
// sources are logged and counted but don't stop the run.
func (p *Pipeline) IngestAll(ctx context.Context, sources []string) (*IngestReport, error) {
	logger := contextutil.LoggerFromContext(ctx)
	logger.InfoContext(ctx, "starting ingestion", "total_files", len(sources))

	report := &IngestReport{Total: len(sources), Results: make([]*IngestResult, len(sources))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, source := range sources {
		g.Go(func() error {
			res, err := p.IngestDocument(gctx, source)

			mu.Lock()
			defer mu.Unlock()
			if res == nil {
				res = &IngestResult{Source: source, Status: domain.StatusFailed}
			}
			report.Results[i] = res
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				report.Failed++
				logger.ErrorContext(gctx, "failed to ingest document", "source", source, "error", err)
				return nil
			}
			switch {
			case res.Skipped:
				report.Skipped++
			case res.Status == domain.StatusIndexed:
				report.Indexed++
			default:
				report.Partial++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	logger.InfoContext(ctx, "ingestion completed",
		"total_files", report.Total,
		"indexed", report.Indexed,
		"partial", report.Partial,
		"skipped", report.Skipped,
		"errors", report.Failed,
	)
	if report.Failed > 0 {
		return report, fmt.Errorf("ingestion completed with %d errors", report.Failed)
	}
	return report, nil
}

// IngestDir scans root and ingests every supported file in it.
func (p *Pipeline) IngestDir(ctx context.Context, root string) (*IngestReport, error) {
	files, err := loader.Scan(ctx, root)
	if err != nil {
		return nil, err
	}
	sources := make([]string, len(files))
	for i, f := range files {
		sources[i] = f.AbsPath
	}
	return p.IngestAll(ctx, sources)
}

// Delete removes a document and its index entries.
func (p *Pipeline) Delete(ctx context.Context, docID string) error {
	return p.index.Delete(ctx, docID)
}

// DeleteSource removes the document currently stored for source.
func (p *Pipeline) DeleteSource(ctx context.Context, source string) error {
	source, err := loader.NormalizeSource(source)
	if err != nil {
		return err
	}
	doc, err := p.docs.GetBySource(ctx, source)
	if err != nil {
		return fmt.Errorf("source %s: %w", source, err)
	}
	return p.index.Delete(ctx, doc.ID)
}

// Rebuild re-embeds failed-partial documents and documents embedded with an
// older model.
func (p *Pipeline) Rebuild(ctx context.Context) (index.RebuildReport, error) {
	return p.index.Rebuild(ctx, p.embedder)
}

// Documents lists all known documents.
func (p *Pipeline) Documents(ctx context.Context) ([]domain.Document, error) {
	return p.docs.List(ctx)
}

// upToDate reports whether doc needs no re-ingestion. Failed-partial documents
// are left to Rebuild.
func upToDate(doc *domain.Document, model string) bool {
	if doc.EmbeddingModel != model {
		return false
	}
	return doc.Status == domain.StatusIndexed || doc.Status == domain.StatusFailedPartial
}

func joinErr(existing, msg string) string {
	if existing == "" {
		return msg
	}
	return existing + "; " + msg
}
