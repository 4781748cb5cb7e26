package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(h *Handlers, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	// Add middleware stack
	r.Use(middleware.RequestID)
	r.Use(RequestIDResponse) // Add X-Request-ID to response headers
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(Metrics)
	r.Use(Recovery(logger))
	r.Use(middleware.Compress(5)) // Gzip compression
	r.Use(ContentTypeJSON)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"}, // Allow all origins for STAC API
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))

	// Operational endpoints
	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	// STAC API routes

	// Landing page
	r.Get("/", h.LandingPage)

	// Conformance
	r.Get("/conformance", h.Conformance)

	// Collections
	r.Get("/collections", h.Collections)
	r.Get("/collections/{collectionId}", h.Collection)

	// Items
	r.Get("/collections/{collectionId}/items", h.Items)
	r.Get("/collections/{collectionId}/items/{itemId}", h.Item)

	// Search endpoint
	r.Route("/search", func(r chi.Router) {
		r.Get("/", h.Search)
		r.Post("/", h.Search)
	})

	// Queryables (if enabled)
	if h.cfg.Features.EnableQueryables {
		r.Get("/queryables", h.Queryables)
		r.Get("/collections/{collectionId}/queryables", h.Queryables)
	}

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "endpoint not found")
	})

	// 405 handler
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	return r
}
