// Package app wires configuration, storage, the vector backend and the
// ingestion and query pipelines into a runnable application.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"os"

	"realestate-rag/internal/config"
	"realestate-rag/internal/domain"
	"realestate-rag/internal/http"
	"realestate-rag/internal/index"
	"realestate-rag/internal/indexer"
	"realestate-rag/internal/llm"
	"realestate-rag/internal/loader"
	"realestate-rag/internal/rag"
	"realestate-rag/internal/storage"
	"realestate-rag/internal/vectorstore"
)

// App holds the wired components.
type App struct {
	Config       *config.Config
	DB           *sql.DB
	Embedder     *llm.EmbeddingsClient
	Index        *index.Manager
	Pipeline     *indexer.Pipeline
	Retriever    *rag.Retriever
	Orchestrator *rag.Orchestrator

	closers []io.Closer
}

// NewLogger builds the process logger from the configured level and format.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// New opens the database and builds every component. It does not contact the
// vector backend or the model services; call Start for that.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	db, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, domain.WrapError(err, "failed to open database")
	}
	a.DB = db
	a.closers = append(a.closers, db)

	if err := storage.Migrate(db); err != nil {
		_ = a.Close()
		return nil, domain.WrapError(err, "failed to run migrations")
	}

	vectors, err := a.vectorStore()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	sources := loader.MultiSource{File: loader.FileSource{}}
	if cfg.GCSEnabled {
		gcs, err := loader.NewGCSSource(ctx)
		if err != nil {
			_ = a.Close()
			return nil, domain.WrapError(err, "failed to create storage client")
		}
		sources.GCS = gcs
		a.closers = append(a.closers, gcs)
	}

	p := cfg.Pipeline
	timeout := p.ServiceTimeout()

	var parser loader.Parser
	if cfg.ParserBaseURL != "" {
		parser = loader.NewHTTPParser(cfg.ParserBaseURL, cfg.ParserAPIKey, timeout)
	}

	docRepo := storage.NewDocumentRepo(db)
	chunkRepo := storage.NewChunkRepo(db)
	ledgerRepo := storage.NewLedgerRepo(db)

	embeddingOpts := []llm.EmbeddingsOption{
		llm.WithBatchSize(p.EmbeddingBatchSize),
		llm.WithConcurrency(p.IngestConcurrency),
		llm.WithTimeout(timeout),
		llm.WithRetry(llm.DefaultRetryPolicy(p.MaxRetryAttempts)),
	}
	if p.EmbeddingRateLimit > 0 {
		embeddingOpts = append(embeddingOpts, llm.WithRateLimit(p.EmbeddingRateLimit, p.EmbeddingBatchSize))
	}
	a.Embedder = llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelID, cfg.EmbeddingDim, embeddingOpts...)

	a.Index = index.NewManager(docRepo, chunkRepo, ledgerRepo, vectors, index.Config{
		Collection: cfg.QdrantCollection,
		Dimension:  cfg.EmbeddingDim,
	})

	l := loader.New(sources, &loader.PDFSplitter{}, parser, docRepo, p.IngestConcurrency)
	a.Pipeline = indexer.NewPipeline(l, a.Embedder, a.Index, docRepo, chunkRepo, indexer.Config{
		MaxTokensPerChunk: p.MaxTokensPerChunk,
		ChunkOverlapRatio: p.ChunkOverlapRatio,
		Concurrency:       p.IngestConcurrency,
	})

	a.Retriever = rag.NewRetriever(a.Embedder, a.Index, rag.RetrieverConfig{
		K:             p.RetrievalK,
		CandidatePool: p.RetrievalCandidatePoolSize,
		VectorWeight:  p.RetrievalVectorWeight,
		LexicalWeight: p.RetrievalLexicalWeight,
	})

	generator := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName,
		llm.WithResponseTimeout(timeout),
		llm.WithChatRetry(llm.DefaultRetryPolicy(p.MaxRetryAttempts)),
	)
	a.Orchestrator = rag.NewOrchestrator(a.Retriever, generator, rag.OrchestratorConfig{
		K:                 p.RetrievalK,
		ChunksPerDocument: p.ContextChunksPerDocument,
		Temperature:       float32(p.LLMTemperature),
		MaxTokens:         p.LLMMaxTokens,
	})

	return a, nil
}

func (a *App) vectorStore() (vectorstore.VectorStore, error) {
	switch a.Config.VectorBackend {
	case config.BackendMemory:
		return vectorstore.NewMemoryStore(), nil
	default:
		store, err := vectorstore.NewQdrantStore(a.Config.QdrantURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
		}
		a.closers = append(a.closers, store)
		return store, nil
	}
}

// CheckEmbedder embeds a probe text and verifies the vector size.
func (a *App) CheckEmbedder(ctx context.Context) error {
	vectors, err := a.Embedder.EmbedTexts(ctx, []string{"test"})
	if err != nil {
		return domain.WrapError(err, "failed to validate embedding client")
	}
	if len(vectors) == 0 || len(vectors[0]) != a.Config.EmbeddingDim {
		got := 0
		if len(vectors) > 0 {
			got = len(vectors[0])
		}
		return fmt.Errorf("embedding vector size mismatch: expected %d, got %d: %w", a.Config.EmbeddingDim, got, domain.ErrDimensionMismatch)
	}
	return nil
}

// Start prepares the index: it ensures the collection exists, replays the
// ledger, reconciles the backend and re-embeds incomplete documents. When
// rebuild is false incomplete documents are left for an explicit rebuild.
func (a *App) Start(ctx context.Context, rebuild bool) error {
	var embedder index.Embedder
	if rebuild {
		embedder = a.Embedder
	}
	return a.Index.Startup(ctx, embedder)
}

// Router returns the HTTP API handler.
func (a *App) Router() nethttp.Handler {
	return http.NewRouter(&http.Deps{
		Answers:   a.Orchestrator,
		Documents: a.Pipeline,
		Index:     a.Pipeline,
		Vectors:   a.Index,
		DB:        a.DB,
		DataDir:   a.Config.DataDir,
	})
}

// Watcher returns a watcher that keeps the index in sync with the data directory.
func (a *App) Watcher() *indexer.Watcher {
	return indexer.NewWatcher(a.Pipeline, a.Config.DataDir, indexer.DefaultDebounce)
}

// EnsureDataDir creates the data directory if needed.
func (a *App) EnsureDataDir() error {
	if err := os.MkdirAll(a.Config.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// Close releases every resource opened by New, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
