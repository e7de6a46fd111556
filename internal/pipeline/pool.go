package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"lekhaslides/internal/pkg/errors"
	"lekhaslides/internal/pkg/logger"
	"lekhaslides/internal/render"
	"lekhaslides/internal/slides"
)

// DefaultConcurrency is the pool size when none is configured.
const DefaultConcurrency = 4

// JobState tracks one render job through the pool.
type JobState int32

const (
	JobQueued JobState = iota
	JobRunning
	JobSucceeded
	JobFailedFallback
)

func (s JobState) String() string {
	switch s {
	case JobQueued:
		return "queued"
	case JobRunning:
		return "running"
	case JobSucceeded:
		return "succeeded"
	case JobFailedFallback:
		return "failed_fallback"
	default:
		return fmt.Sprintf("JobState(%d)", int32(s))
	}
}

// Pool renders a batch with a fixed number of workers.
type Pool struct {
	size int
	log  *logger.Logger
}

func NewPool(size int, log *logger.Logger) *Pool {
	if size <= 0 {
		size = DefaultConcurrency
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Pool{size: size, log: log.WithComponent("pool")}
}

// Size is the number of workers.
func (p *Pool) Size() int { return p.size }

// Run renders every spec and returns the slides in spec order, with the job states.
// done is called once per finished job, in completion order, from the worker that finished it.
// A failing job yields a fallback slide; Run only returns an error when ctx ends first,
// in which case unstarted jobs stay queued and their slots are empty.
func (p *Pool) Run(ctx context.Context, r *render.Renderer, specs []slides.RenderSpec, done func(slides.RenderedSlide)) ([]slides.RenderedSlide, []JobState, error) {
	out := make([]slides.RenderedSlide, len(specs))
	states := make([]atomic.Int32, len(specs))

	// Every job is known up front.
	queue := make(chan int, len(specs))
	for i := range specs {
		queue <- i
	}
	close(queue)

	workers := min(p.size, len(specs))
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := range queue {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				states[i].Store(int32(JobRunning))
				slide, err := p.runJob(ctx, r, specs[i])
				if err != nil {
					states[i].Store(int32(JobQueued))
					return err
				}
				if slide.Failed {
					states[i].Store(int32(JobFailedFallback))
				} else {
					states[i].Store(int32(JobSucceeded))
				}
				out[i] = slide
				if done != nil {
					done(slide)
				}
			}
			return nil
		})
	}
	err := g.Wait()

	final := make([]JobState, len(specs))
	for i := range states {
		final[i] = JobState(states[i].Load())
	}
	return out, final, err
}

// runJob renders one spec, substituting a fallback slide on any failure other than ctx ending.
func (p *Pool) runJob(ctx context.Context, r *render.Renderer, spec slides.RenderSpec) (slide slides.RenderedSlide, err error) {
	slide = slides.RenderedSlide{Index: spec.Index, Number: spec.Item.Number}

	defer func() {
		if rec := recover(); rec != nil {
			cause := errors.Newf(errors.CodeRender, "render panicked: %v", rec).
				WithField("index", spec.Index).
				WithField("stack", string(debug.Stack()))
			slide, err = p.fallback(ctx, r, spec, cause), nil
		}
	}()

	img, renderErr := r.Render(ctx, spec)
	if renderErr != nil && ctx.Err() != nil {
		return slide, ctx.Err()
	}
	if renderErr == nil {
		data, encErr := render.Encode(img, spec.Flags)
		if encErr == nil {
			slide.Image = data
			return slide, nil
		}
		renderErr = errors.Render(encErr, spec.Index, "encoding failed")
	}
	return p.fallback(ctx, r, spec, renderErr), nil
}

func (p *Pool) fallback(ctx context.Context, r *render.Renderer, spec slides.RenderSpec, cause error) slides.RenderedSlide {
	p.log.WithSlide(spec.Index).Warn("slide render failed, using fallback",
		"number", spec.Item.Number,
		"error", cause.Error(),
	)
	slide := slides.RenderedSlide{Index: spec.Index, Number: spec.Item.Number, Failed: true, Err: cause}
	data, err := render.Encode(r.Fallback(ctx, spec), spec.Flags)
	if err != nil {
		p.log.WithSlide(spec.Index).Error("fallback encoding failed", "error", err.Error())
		return slide
	}
	slide.Image = data
	return slide
}
