package processor

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"lekhaslides/internal/pipeline"
	"lekhaslides/internal/pkg/logger"
)

// DefaultProgressInterval is the minimum spacing of progress writes.
const DefaultProgressInterval = time.Second

// RendererAdapter runs the pipeline and mirrors its progress into the batch record.
type RendererAdapter struct {
	gen      Generator
	store    BatchStore
	interval time.Duration
	log      *logger.Logger
}

func NewRendererAdapter(gen Generator, store BatchStore, interval time.Duration, log *logger.Logger) *RendererAdapter {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &RendererAdapter{gen: gen, store: store, interval: interval, log: log}
}

// Render generates the deck for batchID. Progress writes are throttled, except the
// last one which always lands.
func (ra *RendererAdapter) Render(ctx context.Context, batchID string, req pipeline.BatchRequest) (*pipeline.Result, error) {
	log := ra.log.FromContext(ctx).WithBatchID(batchID)
	throttle := &rate.Sometimes{First: 1, Interval: ra.interval}

	write := func(current int) {
		if err := ra.store.UpdateProgress(ctx, batchID, current); err != nil {
			log.Warn("progress update failed", "completed", current, "error", err.Error())
		}
	}

	sink := func(e pipeline.Event) {
		if e.Type != pipeline.EventProgress {
			return
		}
		if e.Current == e.Total {
			write(e.Current)
			return
		}
		throttle.Do(func() { write(e.Current) })
	}

	return ra.gen.Generate(ctx, req, sink)
}
