package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"lekhaslides/internal/config"
	"lekhaslides/internal/pipeline"
	"lekhaslides/internal/pkg/env"
	"lekhaslides/internal/pkg/logger"
	"lekhaslides/internal/pkg/shutdown"
	"lekhaslides/internal/resources"
	"lekhaslides/internal/storage"
	"lekhaslides/internal/worker"
)

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
		ServiceName: "lekhaslides-worker",
	})
	if !cfg.AsyncEnabled() {
		log.LogFatal("worker needs postgres and redis", errors.New("DATABASE_URL and REDIS_ADDR are required"))
	}

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, env.Duration("WORKER_SHUTDOWN_TIMEOUT", 5*time.Minute))

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	shutdownMgr.RegisterSimple("postgres", pool.Close)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	shutdownMgr.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})

	sp, err := storage.NewProvider(ctx, cfg)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
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

	runCtx, stop := context.WithCancel(ctx)
	stopped := make(chan struct{})
	// Registered last so it runs first: the in-flight batch finishes before the pools close.
	shutdownMgr.Register("worker", func(ctx context.Context) error {
		stop()
		select {
		case <-stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	go func() {
		defer close(stopped)
		err := worker.Run(runCtx, worker.Deps{
			Pool:             pool,
			RDB:              rdb,
			SP:               sp,
			Service:          svc,
			QueueName:        cfg.QueueName,
			CleanupInputs:    cfg.CleanupInputs,
			ProgressInterval: env.Duration("PROGRESS_INTERVAL", time.Second),
			Log:              log,
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("worker stopped", "error", err.Error())
			go shutdownMgr.Shutdown()
		}
	}()

	shutdownMgr.Wait(ctx)
}
