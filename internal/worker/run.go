// Package worker pulls queued batch ids and processes them one at a time.
package worker

import (
	"context"
	"time"

	"lekhaslides/internal/pkg/logger"
	"lekhaslides/internal/repositories"
	"lekhaslides/internal/worker/processor"
	"lekhaslides/internal/worker/queue"
)

// DefaultPopTimeout is the blocking read window on the queue.
const DefaultPopTimeout = 5 * time.Second

// Queue yields batch ids. Pop returns "" on timeout.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (string, error)
}

// BatchProcessor handles one batch id.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, batchID string) error
}

func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	q := queue.NewRedisQueue(d.RDB, d.QueueName)
	p := processor.New(processor.Deps{
		Store:            repositories.NewBatchRepository(d.Pool),
		Generator:        d.Service,
		SP:               d.SP,
		CleanupInputs:    d.CleanupInputs,
		ProgressInterval: d.ProgressInterval,
		Log:              log,
	})

	log.Info("worker started", "queue", q.Name(), "storage", d.SP.Provider())
	return loop(ctx, q, p, d.PopTimeout, log)
}

// loop runs until ctx is canceled. A batch that has started is finished even if
// ctx is canceled meanwhile.
func loop(ctx context.Context, q Queue, p BatchProcessor, popTimeout time.Duration, log *logger.Logger) error {
	if popTimeout <= 0 {
		popTimeout = DefaultPopTimeout
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("worker context canceled, stopping")
			return ctx.Err()
		default:
		}

		batchID, err := q.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping due to context cancellation")
				return ctx.Err()
			}
			log.Warn("queue pop error, retrying", "error", err.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if batchID == "" {
			continue
		}

		batchCtx := logger.ContextWithBatchID(context.WithoutCancel(ctx), batchID)
		batchLog := log.WithBatchID(batchID)
		batchLog.Info("processing batch")
		started := time.Now()

		if err := p.ProcessBatch(batchCtx, batchID); err != nil {
			batchLog.Error("batch failed",
				"error", err.Error(),
				"duration_ms", time.Since(started).Milliseconds(),
			)
		} else {
			batchLog.Info("batch completed",
				"duration_ms", time.Since(started).Milliseconds(),
			)
		}
	}
}
