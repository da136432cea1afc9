package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-matrix/internal/api"
	"github.com/p-n-ai/pai-matrix/internal/bank"
	"github.com/p-n-ai/pai-matrix/internal/curriculum"
	"github.com/p-n-ai/pai-matrix/internal/matrix"
	"github.com/p-n-ai/pai-matrix/internal/platform/cache"
	"github.com/p-n-ai/pai-matrix/internal/platform/config"
	"github.com/p-n-ai/pai-matrix/internal/platform/database"
	"github.com/p-n-ai/pai-matrix/internal/schema"
	"github.com/p-n-ai/pai-matrix/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer app.close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.WithCORS(app.mux, cfg.CORS.AllowedOrigins),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store.Driver, "cache", cfg.Cache.Enabled)
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

// newLogger builds the slog handler from config. Unknown levels fall back
// to info.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// app holds the wired service and the resources to release on exit.
type app struct {
	mux     *http.ServeMux
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp wires configuration into the service and its HTTP routes.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	checks := map[string]healthCheck{}

	loader, err := curriculum.NewLoader(cfg.Paths.Curriculum)
	if err != nil {
		return nil, fmt.Errorf("load curriculum: %w", err)
	}

	var qbank *bank.Bank
	if info, err := os.Stat(cfg.Paths.Bank); err == nil && info.IsDir() {
		qbank = bank.New(cfg.Paths.Bank, loader)
	} else {
		slog.Warn("question bank not found, building rows from the bank is disabled", "path", cfg.Paths.Bank)
	}

	var (
		st     store.Store
		events store.EventLogger
	)
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Database.Migrate {
			if err := database.Migrate(cfg.Database.URL); err != nil {
				return nil, err
			}
			slog.Info("database migrated")
		}
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		checks["database"] = db.HealthCheck

		pg, err := store.NewPostgresStore(db.Pool)
		if err != nil {
			a.close()
			return nil, err
		}
		st = pg
		events = store.NewPostgresEventLogger(db.Pool)
	default:
		st = store.NewMemoryStore()
		events = store.NopEventLogger{}
	}

	var results *cache.ResultCache
	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			// Allocation is computed when the cache is unavailable.
			slog.Warn("cache unavailable, continuing without it", "error", err)
		} else {
			slog.Info("cache connected", "addr", c.Addr(), "ttl", cfg.Cache.TTL)
			a.closers = append(a.closers, func() { c.Close() })
			checks["cache"] = c.HealthCheck
			results = cache.NewResultCache(c, cfg.Cache.TTL)
		}
	}

	validator, err := schema.New()
	if err != nil {
		a.close()
		return nil, err
	}

	svc := matrix.NewService(matrix.ServiceConfig{
		Store:      st,
		Events:     events,
		Cache:      results,
		Curriculum: loader,
		Bank:       qbank,
		Policy:     cfg.Engine.Policy(),
	})

	a.mux = newMux(checks)
	api.NewHandler(svc, validator, cfg.CORS.AllowedOrigins).Register(a.mux)
	return a, nil
}

// healthCheck reports whether a dependency is reachable.
type healthCheck func(ctx context.Context) error

// newMux creates the HTTP router with health check endpoints.
func newMux(checks map[string]healthCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(checks))
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(checks map[string]healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		failed := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if len(failed) > 0 {
			slog.Warn("readiness check failed", "checks", failed)
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{"status": "unavailable", "checks": failed})
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
