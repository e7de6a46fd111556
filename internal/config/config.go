// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"lekhaslides/internal/pkg/env"
)

// Crop cache modes.
const (
	CropCacheNone   = "none"
	CropCacheMemory = "memory"
	CropCacheRedis  = "redis"
)

type Config struct {
	HTTPPort string

	LogLevel  string
	LogFormat string
	LogSource bool

	CORSAllowedOrigins []string

	// RenderConcurrency is the worker pool size for one batch.
	RenderConcurrency int
	// PreviewScale is the preview tier's canvas factor relative to 1920x1080.
	PreviewScale float64
	// FontDir optionally overrides the embedded fonts with chalk.ttf, casual.ttf, ...
	FontDir string

	CropCache    string
	CropCacheTTL time.Duration

	MaxUploadBytes int64
	PreviewRate    float64
	PreviewBurst   int
	RequestTimeout time.Duration
	PageSize       int

	// DatabaseURL and RedisAddr are optional for the API; without both, async batches are off.
	DatabaseURL string
	RedisAddr   string
	QueueName   string

	CleanupInputs bool

	// Storage for async batch inputs and decks.
	StorageProvider    string
	StorageLocalRoot   string
	GDriveClientID     string
	GDriveClientSecret string
	GDriveRefreshToken string
	GDriveFolderID     string
	S3Bucket           string
	S3Region           string
	// S3Endpoint points the client at an S3-compatible server (minio); it implies path-style addressing.
	S3Endpoint string
	DeckURLTTL time.Duration
}

// Load reads the environment. cmd/* load .env files before calling it.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:           env.String("HTTP_PORT", "8080"),
		LogLevel:           env.String("LOG_LEVEL", "info"),
		LogFormat:          env.String("LOG_FORMAT", "json"),
		LogSource:          env.Bool("LOG_SOURCE", false),
		CORSAllowedOrigins: env.CSV("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RenderConcurrency:  env.Int("RENDER_CONCURRENCY", 4),
		PreviewScale:       env.Float("PREVIEW_SCALE", 0.5),
		FontDir:            env.String("FONT_DIR", ""),
		CropCache:          env.String("CROP_CACHE", CropCacheMemory),
		CropCacheTTL:       env.Duration("CROP_CACHE_TTL", 30*time.Minute),
		MaxUploadBytes:     env.Int64("MAX_UPLOAD_BYTES", 64<<20),
		PreviewRate:        env.Float("PREVIEW_RATE", 10),
		PreviewBurst:       env.Int("PREVIEW_BURST", 20),
		RequestTimeout:     env.Duration("REQUEST_TIMEOUT", 30*time.Second),
		PageSize:           env.Int("PREVIEW_PAGE_SIZE", 20),
		DatabaseURL:        env.String("DATABASE_URL", ""),
		RedisAddr:          env.String("REDIS_ADDR", ""),
		QueueName:          env.String("BATCH_QUEUE_NAME", "lekhaslides:batches"),
		CleanupInputs:      env.Bool("CLEANUP_INPUTS", true),
		StorageProvider:    env.String("STORAGE_PROVIDER", "localfs"),
		StorageLocalRoot:   env.String("STORAGE_LOCAL_ROOT", "./data"),
		GDriveClientID:     env.String("GDRIVE_CLIENT_ID", ""),
		GDriveClientSecret: env.String("GDRIVE_CLIENT_SECRET", ""),
		GDriveRefreshToken: env.String("GDRIVE_REFRESH_TOKEN", ""),
		GDriveFolderID:     env.String("GDRIVE_FOLDER_ID", ""),
		S3Bucket:           env.String("S3_BUCKET", ""),
		S3Region:           env.String("S3_REGION", ""),
		S3Endpoint:         env.String("S3_ENDPOINT", ""),
		DeckURLTTL:         env.Duration("DECK_URL_TTL", 15*time.Minute),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.RenderConcurrency < 1 {
		return fmt.Errorf("RENDER_CONCURRENCY must be >= 1, got %d", c.RenderConcurrency)
	}
	if c.PreviewScale <= 0 || c.PreviewScale > 1 {
		return fmt.Errorf("PREVIEW_SCALE must be in (0, 1], got %v", c.PreviewScale)
	}
	switch c.CropCache {
	case CropCacheNone, CropCacheMemory:
	case CropCacheRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("CROP_CACHE=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown CROP_CACHE %q", c.CropCache)
	}
	switch c.StorageProvider {
	case "localfs", "gdrive", "s3":
	default:
		return fmt.Errorf("unknown STORAGE_PROVIDER %q", c.StorageProvider)
	}
	if c.PageSize < 1 {
		return fmt.Errorf("PREVIEW_PAGE_SIZE must be >= 1, got %d", c.PageSize)
	}
	return nil
}

// AsyncEnabled reports whether the async batch endpoints can be served.
func (c Config) AsyncEnabled() bool {
	return c.DatabaseURL != "" && c.RedisAddr != ""
}
