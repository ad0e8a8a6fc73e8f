package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-schedule/internal/api"
	"github.com/p-n-ai/pai-schedule/internal/assessment"
	"github.com/p-n-ai/pai-schedule/internal/course"
	"github.com/p-n-ai/pai-schedule/internal/docstore"
	"github.com/p-n-ai/pai-schedule/internal/platform/cache"
	"github.com/p-n-ai/pai-schedule/internal/platform/config"
	"github.com/p-n-ai/pai-schedule/internal/platform/database"
	"github.com/p-n-ai/pai-schedule/internal/schedule"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg, os.Stdout))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open document store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	handler, err := newHandler(ctx, cfg, store)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// newLogger builds the process logger from the log settings.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(cfg.LogLevel()))
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// openStore connects the configured document store. The returned func
// releases the store and its underlying connection.
func openStore(ctx context.Context, cfg *config.Config) (docstore.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		store := docstore.NewMemoryStore()
		return store, func() { _ = store.Close() }, nil

	case config.BackendPostgres:
		db, err := database.New(ctx, cfg.Database.URL, database.Options{
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		store, err := docstore.NewPostgresStore(ctx, db.Pool)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, func() {
			_ = store.Close()
			db.Close()
		}, nil

	case config.BackendRedis:
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return nil, nil, err
		}
		store, err := docstore.NewRedisStore(ctx, c)
		if err != nil {
			_ = c.Close()
			return nil, nil, err
		}
		return store, func() {
			_ = store.Close()
			_ = c.Close()
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// newHandler seeds courses, loads the status table and wires the API.
func newHandler(ctx context.Context, cfg *config.Config, store docstore.Store) (*api.Handler, error) {
	if path := cfg.Schedule.CourseSeedPath; path != "" {
		loader, err := course.NewLoader(path)
		if err != nil {
			return nil, fmt.Errorf("load course definitions: %w", err)
		}
		if _, err := loader.Seed(ctx, store); err != nil {
			return nil, fmt.Errorf("seed courses: %w", err)
		}
	}

	statuses := schedule.DefaultStatusTable()
	if path := cfg.Schedule.StatusTablePath; path != "" {
		t, err := schedule.LoadStatusTable(path)
		if err != nil {
			return nil, err
		}
		statuses = t
		slog.Info("status table loaded", "path", path)
	}

	normalizer := schedule.NewNormalizer(schedule.NormalizerConfig{
		Resolver:    assessment.NewSource(store),
		Statuses:    statuses,
		Concurrency: cfg.Schedule.FetchConcurrency,
	})
	controller := schedule.NewController(schedule.ControllerConfig{
		Store:          store,
		Normalizer:     normalizer,
		CheckStructure: cfg.Schedule.CheckStructure,
	})

	return api.New(api.Config{
		Store:          store,
		Normalizer:     normalizer,
		Controller:     controller,
		OriginPatterns: cfg.Server.OriginPatterns,
	}), nil
}
