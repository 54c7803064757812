package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"realestate-rag/internal/handlers"
)

const healthPath = "/api/health"

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Answers   handlers.AnswerService
	Documents handlers.DocumentService
	Index     handlers.IndexService
	Vectors   handlers.VectorCounter
	// DB is optional; when set the health check pings it.
	DB handlers.DatabasePinger
	// DataDir is the root for local document sources and uploads.
	DataDir string
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	askHandler := handlers.NewAskHandler(deps.Answers)
	documentsHandler := handlers.NewDocumentsHandler(deps.Documents, deps.DataDir)
	indexHandler := handlers.NewIndexHandler(deps.Index)
	healthHandler := handlers.NewHealthHandler(deps.Vectors, deps.DB)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)

		r.Route("/v1", func(r chi.Router) {
			r.Method(http.MethodPost, "/ask", askHandler)

			r.Post("/documents", documentsHandler.Ingest)
			r.Get("/documents", documentsHandler.List)
			r.Delete("/documents/{id}", documentsHandler.Delete)

			r.Post("/index/rebuild", indexHandler.Rebuild)
			r.Get("/index/stats", indexHandler.Stats)
		})
	})

	return r
}
