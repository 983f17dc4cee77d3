package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/af-corp/dentassist/internal/action"
	"github.com/af-corp/dentassist/internal/auth"
	"github.com/af-corp/dentassist/internal/cache"
	"github.com/af-corp/dentassist/internal/config"
	"github.com/af-corp/dentassist/internal/gateway"
	"github.com/af-corp/dentassist/internal/pipeline"
	"github.com/af-corp/dentassist/internal/ratelimit"
	"github.com/af-corp/dentassist/internal/telemetry"
	"github.com/af-corp/dentassist/internal/upstream"
)

func newServeCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the assistant HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*configDir)
		},
	}
}

func serve(configDir string) error {
	bootLogger := telemetry.NewLogger(os.Stdout, "info", "json")
	loader := config.NewLoader(configDir, bootLogger)
	if err := loader.Load(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := loader.Config()

	logger := telemetry.NewLogger(os.Stdout, cfg.Telemetry.LogLevel, cfg.Telemetry.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	// Action registry
	source, closeSource, err := openActionSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSource()

	registry := action.NewRegistry(ctx, source, action.Options{
		Logger:          logger,
		PersistDefaults: cfg.Actions.PersistDefaults,
		DefaultAction:   cfg.Actions.DefaultAction,
	})
	if !registry.Has(cfg.Actions.DefaultAction) {
		return fmt.Errorf("default action %q is not defined", cfg.Actions.DefaultAction)
	}
	metrics.SetActionsLoaded(len(registry.List()))

	rdb := connectRedis(ctx, cfg, logger)
	if rdb != nil {
		defer rdb.Close()
	}

	// Answer cache
	var store cache.Store
	switch cfg.Cache.Backend {
	case "none":
		logger.Info("answer cache disabled")
	case "redis":
		if rdb != nil {
			store = cache.NewInstrumented(cache.NewRedis(rdb, cfg.Cache.Prefix, cfg.Cache.TTL), metrics, logger)
			break
		}
		logger.Warn("redis unavailable, using in-memory answer cache")
		fallthrough
	default:
		mem := cache.NewMemory(cache.MemoryConfig{
			TTL:             cfg.Cache.TTL,
			MaxEntries:      cfg.Cache.MaxEntries,
			CleanupInterval: cfg.Cache.CleanupInterval,
		})
		defer mem.Close()
		store = cache.NewInstrumented(mem, metrics, logger)
	}

	// Rate limiter
	var (
		limiter       ratelimit.Limiter = ratelimit.Unlimited{}
		activeClients func() int
	)
	if cfg.RateLimit.Enabled {
		rlCfg := ratelimit.Config{Limit: cfg.RateLimit.Limit, Window: cfg.RateLimit.Window}
		if cfg.RateLimit.Backend == "redis" && rdb != nil {
			limiter = ratelimit.NewRedis(rdb, rlCfg, logger)
		} else {
			mem := ratelimit.NewMemory(rlCfg, nil)
			go mem.RunPruner(ctx, cfg.RateLimit.PruneInterval)
			limiter = mem
			activeClients = mem.ActiveClients
		}
	}

	// Completion service
	client, err := upstream.New(cfg.Upstream)
	if err != nil {
		logger.Warn("completion service not configured, requests will fail", "error", err)
		client = upstream.Unconfigured{Reason: err}
	}
	guard := upstream.NewGuard(client, upstream.GuardConfig{
		MaxRetries:            cfg.Upstream.MaxRetries,
		InitialInterval:       cfg.Upstream.RetryInitialInterval,
		MaxInterval:           cfg.Upstream.RetryMaxInterval,
		FailureThreshold:      cfg.Upstream.CircuitBreaker.FailureThreshold,
		RecoveryProbeInterval: cfg.Upstream.CircuitBreaker.RecoveryProbeInterval,
	}, metrics, logger)

	p := pipeline.New(pipeline.Config{
		Strict:        cfg.Actions.Strict,
		DefaultAction: cfg.Actions.DefaultAction,
	}, pipeline.Deps{
		Actions:  registry,
		Cache:    store,
		Limiter:  limiter,
		Upstream: guard,
		Metrics:  metrics,
		Logger:   logger,
	})

	handler := gateway.NewHandler(gateway.Options{
		Pipeline: p,
		Uploads:  cfg.Uploads,
		Upstream: gateway.UpstreamStatus{
			URLConfigured: cfg.Upstream.BaseURL != "",
			KeyConfigured: cfg.Upstream.APIKey != "",
			Breaker:       guard.Breaker(),
		},
		ActionStats:   registry.Stats,
		ActiveClients: activeClients,
		Logger:        logger,
		Version:       version,
	})
	keys := auth.NewStaticKeyStore(cfg.Auth)
	if keys.Empty() {
		logger.Warn("no API key configured: /ask is open and /cache/clear is disabled")
	}
	router := gateway.NewRouter(handler, gateway.RouterOptions{
		Keys:           keys,
		Gatherer:       prometheus.DefaultGatherer,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	// Hot reload of the actions file
	watchDone := make(chan struct{})
	defer close(watchDone)
	if fileSource, ok := source.(*action.FileSource); ok {
		watchActionsFile(loader, registry, fileSource, metrics, logger)
		if err := loader.Watch(watchDone, filepath.Dir(fileSource.Path())); err != nil {
			logger.Warn("failed to start config watcher", "error", err)
		}
	} else if err := loader.Watch(watchDone); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("assistant starting",
			"addr", srv.Addr,
			"version", version,
			"actions", len(registry.List()),
			"upstream", client.Name(),
			"cache", cfg.Cache.Backend,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("assistant stopped")
	return nil
}

// openActionSource returns the configured action source and a function releasing its resources.
func openActionSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (action.Source, func(), error) {
	if cfg.Actions.Source != "postgres" {
		return action.NewFileSource(cfg.Actions.Path), func() {}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("parse database config: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Warn("database not reachable, built-in actions will be used", "error", err)
	} else {
		logger.Info("database connected")
	}
	return action.NewPostgresSource(pool), pool.Close, nil
}

// connectRedis returns nil when no Redis backend is selected or the server does not answer.
func connectRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) redis.UniversalClient {
	wanted := cfg.Cache.Backend == "redis" || (cfg.RateLimit.Enabled && cfg.RateLimit.Backend == "redis")
	if !wanted || len(cfg.Redis.Addresses) == 0 {
		return nil
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addresses,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable, falling back to in-memory backends", "error", err)
		rdb.Close()
		return nil
	}
	logger.Info("redis connected", "addresses", cfg.Redis.Addresses)
	return rdb
}

// watchActionsFile reloads the registry when the actions file changes. A file that fails to
// parse leaves the current actions in place.
func watchActionsFile(loader *config.Loader, registry *action.Registry, source *action.FileSource, metrics *telemetry.Metrics, logger *slog.Logger) {
	target, err := filepath.Abs(source.Path())
	if err != nil {
		target = filepath.Clean(source.Path())
	}

	loader.OnChange(func(path string) {
		changed, err := filepath.Abs(path)
		if err != nil || changed != target {
			if filepath.Base(path) == config.MainFile {
				logger.Info("gateway.yaml changed; server, cache and upstream settings apply on restart")
			}
			return
		}
		if err := registry.Reload(context.Background()); err != nil {
			logger.Error("actions reload failed, keeping previous actions", "file", path, "error", err)
			return
		}
		metrics.SetActionsLoaded(len(registry.List()))
	})
}
