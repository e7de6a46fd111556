package worker

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"lekhaslides/internal/pipeline"
	"lekhaslides/internal/pkg/logger"
	"lekhaslides/internal/ports"
)

type Deps struct {
	Pool          *pgxpool.Pool
	RDB           *redis.Client
	SP            ports.StorageProvider
	Service       *pipeline.Service
	QueueName     string
	CleanupInputs bool
	// PopTimeout bounds each blocking queue read so shutdown is noticed.
	PopTimeout       time.Duration
	ProgressInterval time.Duration
	Log              *logger.Logger
}
