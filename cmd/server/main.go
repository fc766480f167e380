// Package main is the entrypoint for the errorwatch API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/errorwatch/internal/ai"
	"github.com/kiranshivaraju/errorwatch/internal/analysis"
	"github.com/kiranshivaraju/errorwatch/internal/api"
	"github.com/kiranshivaraju/errorwatch/internal/api/handler"
	mw "github.com/kiranshivaraju/errorwatch/internal/api/middleware"
	"github.com/kiranshivaraju/errorwatch/internal/cache"
	"github.com/kiranshivaraju/errorwatch/internal/config"
	"github.com/kiranshivaraju/errorwatch/internal/notify"
	"github.com/kiranshivaraju/errorwatch/internal/pipeline"
	"github.com/kiranshivaraju/errorwatch/internal/records"
	"github.com/kiranshivaraju/errorwatch/internal/snapshot"
	"github.com/kiranshivaraju/errorwatch/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"env", cfg.Server.Env,
		"storage", cfg.Database.Backend,
		"analysis_mode", cfg.Analysis.Mode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.AI.InferenceTimeout + cfg.Snapshot.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if a.runner != nil {
		if err := a.runner.Close(shutdownCtx); err != nil {
			slog.Warn("analysis runner did not drain", "error", err)
		}
	}

	slog.Info("server stopped gracefully")
	return nil
}

// app is the wired server. close releases everything newApp opened.
type app struct {
	router  http.Handler
	backend store.Backend
	cache   cache.Cache
	runner  *analysis.Runner
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.backend, err = openBackend(ctx, cfg.Database, a)
	if err != nil {
		return nil, err
	}

	a.cache, err = openCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { a.cache.Close() })

	provider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", provider.Name(), "model", modelName(cfg.AI))

	opts := func(enabled bool) store.Options {
		return store.Options{CacheEnabled: enabled, CacheTTL: cfg.Cache.TTL}
	}
	errorRecords := records.NewErrorRecordStore(a.backend, a.cache, opts(cfg.Cache.ErrorRecords))
	features := records.NewFeatureRegistry(a.backend, a.cache, opts(cfg.Cache.Features))
	admins := records.NewAdminRegistry(a.backend, a.cache, opts(cfg.Cache.Admins))
	subscriptions := records.NewSubscriptionStore(a.backend, a.cache, opts(cfg.Cache.Subscriptions))
	apiKeys := records.NewAPIKeyStore(a.backend, store.Options{})

	dispatcher := notify.NewDispatcher(
		notify.NewSubscriberDirectory(admins, subscriptions),
		notify.NewHTTPTransport(cfg.Notify.Timeout),
		notify.DispatcherConfig{
			Endpoint:    cfg.Notify.Endpoint(),
			Icon:        cfg.Notify.Icon,
			Concurrency: cfg.Notify.Concurrency,
		},
	)

	status := analysis.NewCacheStatusTracker(a.cache)
	orch := analysis.NewOrchestrator(features, newSnapshotProvider(cfg), provider, errorRecords, status,
		analysis.Config{
			Model:            modelName(cfg.AI),
			FetchContext:     cfg.Analysis.FetchContext,
			WebSearch:        cfg.Analysis.WebSearch,
			SkipAnalyzed:     cfg.Analysis.SkipAnalyzed,
			InferenceTimeout: cfg.AI.InferenceTimeout,
			FetchTimeout:     cfg.Snapshot.Timeout,
		})

	var trigger pipeline.AnalysisTrigger = orch
	var queue handler.AnalysisQueue
	if cfg.Analysis.Mode == "async" {
		a.runner = analysis.NewRunner(orch, status, analysis.RunnerConfig{
			Workers:    cfg.Analysis.Workers,
			QueueSize:  cfg.Analysis.QueueSize,
			JobTimeout: cfg.AI.InferenceTimeout + cfg.Snapshot.Timeout,
		})
		a.runner.Start()
		trigger, queue = a.runner, a.runner
	}

	proc := pipeline.NewProcessor(errorRecords, dispatcher, trigger)

	a.router = api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(apiKeys),
		RateLimit: mw.NewRateLimit(a.cache, cfg.Server.RequestsPerMin),

		HealthHandler:     handler.NewHealthHandler(a.backend, a.cache),
		IngestHandler:     handler.NewIngestHandler(proc, cfg.Server.MaxEnvelopeSize),
		ListErrorsHandler: handler.NewListErrorsHandler(errorRecords),
		GetErrorHandler:   handler.NewGetErrorHandler(errorRecords, orch),
		AnalyzeHandler:    handler.NewAnalyzeHandler(errorRecords, orch, queue),
	})
	return a, nil
}

func openBackend(ctx context.Context, cfg config.DatabaseConfig, a *app) (store.Backend, error) {
	if cfg.Backend == "memory" {
		slog.Warn("using in-memory storage, records are lost on restart")
		return store.NewMemoryBackend(), nil
	}

	pool, err := store.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	slog.Info("database connected")

	if err := store.RunMigrations(cfg.URL, cfg.MigrationsDir); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	return store.NewPostgresBackend(pool), nil
}

func openCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	if cfg.Redis.URL == "" {
		c, err := cache.NewMemoryCache(cfg.Cache.MemorySize)
		if err != nil {
			return nil, fmt.Errorf("create memory cache: %w", err)
		}
		slog.Info("using in-process cache", "size", cfg.Cache.MemorySize)
		return c, nil
	}

	c, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("create redis cache: %w", err)
	}
	if err := c.Ping(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")
	return c, nil
}

func newSnapshotProvider(cfg *config.Config) snapshot.Provider {
	if !cfg.Analysis.FetchContext {
		return nil
	}
	opts := snapshot.Options{TempDir: cfg.Snapshot.TempDir, MaxBytes: cfg.Analysis.MaxContextBytes}
	if cfg.Snapshot.Strategy == "command" {
		return snapshot.NewCommandProvider(cfg.Snapshot.Command, opts)
	}
	return snapshot.NewGetterProvider(opts)
}

func modelName(cfg config.AIConfig) string {
	switch cfg.Provider {
	case "ollama":
		return cfg.Ollama.Model
	case "vllm":
		return cfg.VLLM.Model
	case "openai":
		return cfg.OpenAI.Model
	case "anthropic":
		return cfg.Anthropic.Model
	}
	return ""
}
