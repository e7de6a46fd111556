package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"lekhaslides/internal/config"
	"lekhaslides/internal/httpapi"
	"lekhaslides/internal/pipeline"
	"lekhaslides/internal/pkg/logger"
	"lekhaslides/internal/pkg/shutdown"
	"lekhaslides/internal/ports"
	"lekhaslides/internal/resources"
	"lekhaslides/internal/storage"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		AddSource:   cfg.LogSource,
		ServiceName: "lekhaslides-api",
	})
	log.Info("starting lekhaslides API", "version", version)

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		log.Info("connecting to PostgreSQL")
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.LogFatal("failed to connect to PostgreSQL", err)
		}
		shutdownMgr.RegisterSimple("postgres", pool.Close)
		if err := pool.Ping(ctx); err != nil {
			log.LogFatal("failed to ping PostgreSQL", err)
		}
		log.Info("PostgreSQL connected")
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		log.Info("connecting to Redis")
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.LogFatal("failed to ping Redis", err)
		}
		log.Info("Redis connected")
	}

	crops, err := resources.NewCropStore(cfg.CropCache, cfg.CropCacheTTL, rdb)
	if err != nil {
		log.LogFatal("failed to initialize crop cache", err)
	}

	svc := pipeline.NewService(pipeline.Options{
		Concurrency:  cfg.RenderConcurrency,
		PreviewScale: cfg.PreviewScale,
		Fonts:        resources.NewFontLibrary(cfg.FontDir),
		CropStore:    crops,
		Log:          log,
	})

	var sp ports.StorageProvider
	if cfg.AsyncEnabled() {
		log.Info("initializing storage provider")
		sp, err = storage.NewProvider(ctx, cfg)
		if err != nil {
			log.LogFatal("failed to initialize storage provider", err)
		}
		log.Info("storage provider initialized", "provider", sp.Provider())
	} else {
		log.Info("async batches disabled", "reason", "DATABASE_URL and REDIS_ADDR are both required")
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Service: svc,
		Config:  cfg,
		Log:     log,
		Version: version,
		Pool:    pool,
		RDB:     rdb,
		SP:      sp,
	})

	server := &http.Server{
		Addr:        "0.0.0.0:" + cfg.HTTPPort,
		Handler:     router,
		ReadTimeout: 60 * time.Second,
		// Event streams last as long as their batch; previews carry their own timeout.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait(ctx)
}
