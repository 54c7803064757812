package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"realestate-rag/internal/app"
	"realestate-rag/internal/config"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API ingests real-estate documents (listings, deeds, inspection reports,
// contracts) and answers questions over them with cited sources.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: Real Estate RAG API
//   description: |
//     Retrieval-augmented question answering over indexed real-estate documents.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := app.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel, "format", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer func() {
		_ = a.Close()
	}()
	slog.Info("Database initialized", "path", cfg.DBPath)

	if err := a.EnsureDataDir(); err != nil {
		log.Fatalf("Failed to prepare data directory: %v", err)
	}

	// Validate embedding client vector size (fail-fast)
	if err := a.CheckEmbedder(ctx); err != nil {
		log.Fatalf("Embedding service check failed: %v", err)
	}
	slog.Info("Embedding client validated", "model", cfg.EmbeddingModelID, "vector_size", cfg.EmbeddingDim)

	if err := a.Start(ctx, true); err != nil {
		log.Fatalf("Failed to start index: %v", err)
	}
	slog.Info("Index ready", "backend", cfg.VectorBackend, "collection", cfg.QdrantCollection)

	// Ingest the data directory in the background after the index is ready
	go func() {
		slog.Info("Starting background ingestion", "dir", cfg.DataDir)
		report, err := a.Pipeline.IngestDir(ctx, cfg.DataDir)
		if err != nil {
			slog.Error("Ingestion completed with errors", "error", err)
			return
		}
		slog.Info("Ingestion completed successfully",
			"total", report.Total,
			"indexed", report.Indexed,
			"skipped", report.Skipped,
			"partial", report.Partial,
		)
	}()

	if cfg.WatchDataDir {
		go func() {
			if err := a.Watcher().Run(ctx); err != nil {
				slog.Error("Data directory watcher stopped", "error", err)
			}
		}()
	}

	addr := ":" + cfg.APIPort
	server := &nethttp.Server{
		Addr:              addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown failed", "error", err)
		}
	}()

	slog.Info("Starting API server", "addr", addr)
	slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		log.Fatalf("API server failed to start: %v", err)
	}
	slog.Info("API server stopped")
}
