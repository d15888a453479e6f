package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/brandimport/internal/config"
	"github.com/JonMunkholm/brandimport/internal/core"
	"github.com/JonMunkholm/brandimport/internal/customer"
	"github.com/JonMunkholm/brandimport/internal/logging"
	"github.com/JonMunkholm/brandimport/internal/mapping"
	"github.com/JonMunkholm/brandimport/internal/storage"
	"github.com/JonMunkholm/brandimport/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"upload_dir", cfg.Upload.Dir,
		"max_concurrent_imports", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"mapping_precedence", cfg.Mapping.Precedence,
	)

	ctx := context.Background()

	customers, closeDB, err := openCustomerStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open customer store", "error", err)
		os.Exit(1)
	}
	defer closeDB()

	mapper, err := newAutoMapper(cfg.Mapping)
	if err != nil {
		slog.Error("failed to configure auto-mapping", "error", err)
		os.Exit(1)
	}

	files, err := storage.NewLocalStore(cfg.Upload.Dir)
	if err != nil {
		slog.Error("failed to prepare upload directory", "error", err)
		os.Exit(1)
	}

	service := core.NewService(files, customers, mapper, core.ServiceConfig{
		MaxConcurrentImports: cfg.Upload.MaxConcurrent,
		MaxWaitTime:          cfg.Upload.MaxWaitTime,
		ImportTimeout:        cfg.Upload.Timeout,
		BatchSize:            cfg.Upload.BatchSize,
	})

	server := web.NewServer(service, cfg)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	go service.StartRetentionScheduler(jobCtx, core.RetentionConfig{
		MaxAge:   cfg.Upload.Retention,
		Interval: cfg.Upload.SweepInterval,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let running imports finish so no customer batch is cut in half.
		if status := service.ImportStatus(); status.Active > 0 {
			slog.Info("waiting for imports to complete", "active", status.Active)
			if err := service.WaitForImports(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

// openCustomerStore connects to Postgres when a URL is configured and falls
// back to the in-memory store otherwise.
func openCustomerStore(ctx context.Context, cfg config.DatabaseConfig) (customer.Store, func(), error) {
	if cfg.URL == "" {
		slog.Warn("DATABASE_URL not set, customers are kept in memory and lost on restart")
		return customer.NewMemoryStore(), func() {}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	store := customer.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}

// newAutoMapper builds the auto-mapper around the configured resolver.
func newAutoMapper(cfg config.MappingConfig) (*mapping.AutoMapper, error) {
	precedence, err := mapping.ParsePrecedence(cfg.Precedence)
	if err != nil {
		return nil, err
	}

	resolver, err := mapping.NewConfiguredResolver(mapping.ResolverConfig{
		Kind:         strings.ToLower(cfg.Resolver),
		OllamaURL:    cfg.OllamaURL,
		OllamaModel:  cfg.OllamaModel,
		SynonymsFile: cfg.SynonymsFile,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("semantic mapping configured",
		"resolver", cfg.Resolver, "ollama_url", cfg.OllamaURL, "model", cfg.OllamaModel)

	cache := mapping.NewLRUCache(cfg.CacheSize, cfg.CacheTTL)
	return mapping.NewAutoMapper(resolver, cache, mapping.AutoMapperConfig{
		Timeout:    cfg.Timeout,
		Precedence: precedence,
	}), nil
}
