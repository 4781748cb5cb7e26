// Package server provides a public API for embedding the catalog service.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rkm/geocatalog/internal/api"
	"github.com/rkm/geocatalog/internal/config"
	"github.com/rkm/geocatalog/internal/search"
	"github.com/rkm/geocatalog/internal/store"
	"github.com/rkm/geocatalog/internal/store/colcache"
	"github.com/rkm/geocatalog/internal/store/memstore"
	"github.com/rkm/geocatalog/internal/store/pgstore"
)

// Options configures the embedded catalog server.
type Options struct {
	// BaseURL is the public-facing URL for self-referential links (required).
	// Example: "https://api.example.com/catalog" or "http://localhost:8080"
	BaseURL string

	// DSN is a PostgreSQL connection string. Empty means an in-memory
	// store, which the caller can populate through Memory().
	DSN string

	// Migrate applies the PostgreSQL schema at startup.
	Migrate bool

	// Title is the STAC API title.
	// Default: "Geospatial Catalog API"
	Title string

	// Description is the STAC API description.
	Description string

	// DefaultLimit is the default number of items per page.
	// Default: 10
	DefaultLimit int

	// MaxLimit is the maximum number of items per page.
	// Default: 250
	MaxLimit int

	// FetchBatchCap bounds the store batch size for in-process filter
	// evaluation.
	// Default: 1000
	FetchBatchCap int

	// EnableSearch enables the /search endpoint.
	// Default: true
	EnableSearch bool

	// EnableQueryables enables the /queryables endpoints.
	// Default: true
	EnableQueryables bool

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server is a catalog server that can be embedded in another application.
type Server struct {
	router chi.Router
	memory *memstore.Store
	pg     *pgstore.Store
}

// New creates a new catalog server with the given options.
func New(ctx context.Context, opts Options) (*Server, error) {
	// Apply defaults
	if opts.Title == "" {
		opts.Title = "Geospatial Catalog API"
	}
	if opts.Description == "" {
		opts.Description = "Searchable catalog of geospatial assets"
	}
	if opts.DefaultLimit == 0 {
		opts.DefaultLimit = 10
	}
	if opts.MaxLimit == 0 {
		opts.MaxLimit = 250
	}
	if opts.FetchBatchCap == 0 {
		opts.FetchBatchCap = 1000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	storeType := "memory"
	if opts.DSN != "" {
		storeType = "postgres"
	}

	// Build internal config
	cfg := &config.Config{
		Store: config.StoreConfig{
			Type:      storeType,
			DSN:       opts.DSN,
			CacheSize: 256,
			CacheTTL:  5 * time.Minute,
		},
		STAC: config.STACConfig{
			Version:     "1.0.0",
			BaseURL:     opts.BaseURL,
			ID:          "geocatalog",
			Title:       opts.Title,
			Description: opts.Description,
		},
		Features: config.FeatureConfig{
			EnableSearch:     opts.EnableSearch,
			EnableQueryables: opts.EnableQueryables,
			EnableFilter:     true,
			EnableSortby:     true,
			EnableFields:     true,
			DefaultLimit:     opts.DefaultLimit,
			MaxLimit:         opts.MaxLimit,
			FetchBatchCap:    opts.FetchBatchCap,
		},
	}

	srv := &Server{}

	var itemStore store.Store
	if opts.DSN != "" {
		pg, err := pgstore.New(ctx, opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		if opts.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				pg.Close()
				return nil, fmt.Errorf("migrating schema: %w", err)
			}
		}
		srv.pg = pg
		itemStore = pg
	} else {
		srv.memory = memstore.New()
		itemStore = srv.memory
	}

	cached, err := colcache.New(itemStore, cfg.Store.CacheSize, cfg.Store.CacheTTL)
	if err != nil {
		return nil, err
	}

	searcher := search.New(cached, search.Options{
		DefaultLimit:  cfg.Features.DefaultLimit,
		MaxLimit:      cfg.Features.MaxLimit,
		FetchBatchCap: cfg.Features.FetchBatchCap,
	}, opts.Logger)

	handlers := api.NewHandlers(cfg, cached, searcher, opts.Logger)
	srv.router = api.NewRouter(handlers, opts.Logger)

	return srv, nil
}

// Router returns the chi.Router for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}

// Memory returns the in-memory store for seeding, or nil when the server
// is backed by PostgreSQL.
func (s *Server) Memory() *memstore.Store {
	return s.memory
}

// Close releases the database pool when one is in use.
func (s *Server) Close() {
	if s.pg != nil {
		s.pg.Close()
	}
}
