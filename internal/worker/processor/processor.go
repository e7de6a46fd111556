// Package processor runs one queued batch: load its input, render it through the
// pipeline, upload the deck and record the outcome.
package processor

import (
	"context"
	"time"

	"lekhaslides/internal/models"
	"lekhaslides/internal/pipeline"
	"lekhaslides/internal/pkg/errors"
	"lekhaslides/internal/pkg/logger"
	"lekhaslides/internal/ports"
)

// BatchStore is the slice of the batch repository the processor writes to.
type BatchStore interface {
	Get(ctx context.Context, id string) (*models.Batch, error)
	MarkRunning(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, completed int) error
	MarkDone(ctx context.Context, id, deckKey string, deckSize int64, failedSlides int) error
	MarkFailed(ctx context.Context, id, msg string) error
}

// Generator renders a batch into a deck. *pipeline.Service implements it.
type Generator interface {
	Generate(ctx context.Context, req pipeline.BatchRequest, sink pipeline.Sink) (*pipeline.Result, error)
}

type Deps struct {
	Store     BatchStore
	Generator Generator
	SP        ports.StorageProvider
	// CleanupInputs deletes the stored input once the deck is uploaded.
	CleanupInputs bool
	// ProgressInterval throttles completed-count writes; the final count is always written.
	ProgressInterval time.Duration
	Log              *logger.Logger
}

type Processor struct {
	store BatchStore
	log   *logger.Logger

	inputHandler    *InputHandler
	outputHandler   *OutputHandler
	rendererAdapter *RendererAdapter
	cleanup         *Cleanup
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	return &Processor{
		store:           d.Store,
		log:             log,
		inputHandler:    NewInputHandler(d.SP),
		outputHandler:   NewOutputHandler(d.SP),
		rendererAdapter: NewRendererAdapter(d.Generator, d.Store, d.ProgressInterval, log),
		cleanup:         NewCleanup(d.SP, d.CleanupInputs, log),
	}
}

// ProcessBatch runs batchID to DONE or FAILED. A batch already DONE is skipped so a
// redelivered id does not render twice.
func (p *Processor) ProcessBatch(ctx context.Context, batchID string) error {
	log := p.log.FromContext(ctx).WithBatchID(batchID)

	// 1. Load the record
	batch, err := p.store.Get(ctx, batchID)
	if err != nil {
		return errors.Wrap(err, "processor.fetch", "failed to fetch batch")
	}
	if batch.Status == models.BatchDone {
		log.Info("batch already done, skipping")
		return nil
	}

	// 2. Mark as running
	if err := p.store.MarkRunning(ctx, batchID); err != nil {
		return p.failBatch(ctx, batchID, errors.Wrap(err, "processor.status", "failed to mark batch as running"))
	}

	// 3. Load the stored input
	log.Debug("loading batch input", "key", batch.InputKey)
	req, err := p.inputHandler.Load(ctx, batch.InputKey)
	if err != nil {
		return p.failBatch(ctx, batchID, errors.Wrap(err, "processor.inputs", "failed to load batch input"))
	}

	// 4. Render
	log.Info("starting render", "slides", len(req.Items))
	res, err := p.rendererAdapter.Render(ctx, batchID, req)
	if err != nil {
		return p.failBatch(ctx, batchID, err)
	}

	// 5. Upload the deck
	deckKey, size, err := p.outputHandler.Upload(ctx, batchID, res.Artifact)
	if err != nil {
		return p.failBatch(ctx, batchID, errors.Wrap(err, "processor.outputs", "failed to upload deck"))
	}
	log.Debug("deck uploaded", "key", deckKey, "bytes", size)

	// 6. Record the result
	if err := p.store.MarkDone(ctx, batchID, deckKey, size, res.Failed); err != nil {
		return p.failBatch(ctx, batchID, errors.Wrap(err, "processor.save", "failed to mark batch as done"))
	}

	// 7. Drop the input
	p.cleanup.Input(ctx, batch.InputKey)

	log.Info("batch done",
		"slides", len(res.Slides),
		"failed_slides", res.Failed,
		"deck_bytes", size,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return nil
}

func (p *Processor) failBatch(ctx context.Context, batchID string, cause error) error {
	log := p.log.FromContext(ctx).WithBatchID(batchID)

	var coded *errors.Error
	if errors.As(cause, &coded) {
		log.Error("batch failed",
			"code", string(coded.Code),
			"op", coded.Op,
			"message", coded.Message,
			"error", cause.Error(),
		)
	} else {
		log.Error("batch failed", "error", cause.Error())
	}

	// Input errors are shown to users as-is; anything else keeps its chain.
	msg := cause.Error()
	if errors.IsBatchInput(cause) {
		msg = errors.GetMessage(cause)
	}
	// Record the failure even when ctx was canceled underneath us.
	if err := p.store.MarkFailed(context.WithoutCancel(ctx), batchID, msg); err != nil {
		log.Error("failed to record batch failure", "error", err.Error())
	}
	return cause
}
