// Geospatial catalog server entry point
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rkm/geocatalog/internal/api"
	"github.com/rkm/geocatalog/internal/config"
	"github.com/rkm/geocatalog/internal/search"
	"github.com/rkm/geocatalog/internal/store"
	"github.com/rkm/geocatalog/internal/store/colcache"
	"github.com/rkm/geocatalog/internal/store/memstore"
	"github.com/rkm/geocatalog/internal/store/pgstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up logger
	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	logger.Info("starting geocatalog",
		"version", cfg.STAC.Version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"store", cfg.Store.Type,
	)

	ctx := context.Background()

	// Create the item store
	var itemStore store.Store
	switch cfg.Store.Type {
	case "postgres":
		pg, err := pgstore.New(ctx, cfg.Store.DSN)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer pg.Close()
		if cfg.Store.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to migrate schema: %w", err)
			}
			logger.Info("schema migrated")
		}
		itemStore = pg
	default:
		mem := memstore.New()
		if cfg.Store.SeedPath != "" {
			seed, err := config.LoadSeed(cfg.Store.SeedPath)
			if err != nil {
				return fmt.Errorf("failed to load seed catalog: %w", err)
			}
			for _, collection := range seed.Collections {
				mem.PutCollection(collection)
			}
			for _, item := range seed.Items {
				if err := mem.PutItem(item); err != nil {
					return fmt.Errorf("failed to seed item: %w", err)
				}
			}
			logger.Info("seeded catalog",
				"collections", len(seed.Collections),
				"items", len(seed.Items),
			)
		}
		itemStore = mem
	}

	// Collection reads go through a bounded cache
	cached, err := colcache.New(itemStore, cfg.Store.CacheSize, cfg.Store.CacheTTL)
	if err != nil {
		return fmt.Errorf("failed to create collection cache: %w", err)
	}

	// Create the search engine
	searcher := search.New(cached, search.Options{
		DefaultLimit:  cfg.Features.DefaultLimit,
		MaxLimit:      cfg.Features.MaxLimit,
		FetchBatchCap: cfg.Features.FetchBatchCap,
	}, logger)

	// Create handlers and router
	handlers := api.NewHandlers(cfg, cached, searcher, logger)
	router := api.NewRouter(handlers, logger)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
