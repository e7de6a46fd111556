// Package pipeline runs render batches: it validates input, fans jobs out to the
// worker pool, streams progress and hands the ordered result to the deck assembler.
package pipeline

import (
	"context"
	"encoding/base64"
	"time"

	"lekhaslides/internal/deck"
	"lekhaslides/internal/pkg/errors"
	"lekhaslides/internal/pkg/logger"
	"lekhaslides/internal/render"
	"lekhaslides/internal/resources"
	"lekhaslides/internal/slides"
)

// Options configures a Service.
type Options struct {
	Concurrency  int
	PreviewScale float64
	Fonts        *resources.FontLibrary
	// CropStore, when set, keeps background crops across batches.
	CropStore resources.CropStore
	Log       *logger.Logger
}

// Service is the entry point of the rendering pipeline. It is safe for concurrent use;
// every call gets its own resource cache.
type Service struct {
	pool         *Pool
	previewScale float64
	fonts        *resources.FontLibrary
	store        resources.CropStore
	log          *logger.Logger
}

func NewService(opts Options) *Service {
	if opts.Log == nil {
		opts.Log = logger.Discard()
	}
	if opts.Fonts == nil {
		opts.Fonts = resources.NewFontLibrary("")
	}
	return &Service{
		pool:         NewPool(opts.Concurrency, opts.Log),
		previewScale: slides.PreviewTier(opts.PreviewScale).Scale,
		fonts:        opts.Fonts,
		store:        opts.CropStore,
		log:          opts.Log.WithComponent("pipeline"),
	}
}

// BatchRequest is a full batch: one background, ordered items, and the global style.
type BatchRequest struct {
	Background []byte
	Items      []slides.ContentItem
	Style      *slides.StyleOverride
	Title      string
}

// Validate rejects structurally invalid batches.
func (r BatchRequest) Validate() error {
	if len(r.Background) == 0 {
		return errors.BatchInput("background image is required")
	}
	if len(r.Items) == 0 {
		return errors.BatchInput("at least one content item is required")
	}
	return nil
}

// Result is the outcome of a generated batch.
type Result struct {
	Artifact []byte
	Slides   []slides.RenderedSlide
	Failed   int
	Stats    resources.Stats
	Duration time.Duration
}

func (s *Service) newCache() *resources.Cache {
	return resources.NewCache(s.fonts, s.store, s.log)
}

// specs builds one RenderSpec per item in [start, end). Indices stay global.
func specs(req BatchRequest, start, end int, tier slides.Tier, flags slides.RenderFlags) []slides.RenderSpec {
	out := make([]slides.RenderSpec, 0, end-start)
	for i := start; i < end; i++ {
		item := req.Items[i]
		if item.Number == 0 {
			item.Number = i + 1
		}
		out = append(out, slides.RenderSpec{
			Index:      i,
			Background: req.Background,
			Style:      slides.Resolve(req.Style, item.Override),
			Item:       item,
			Tier:       tier,
			Flags:      flags,
		})
	}
	return out
}

// checkBackground decodes and crops the background once so a bad upload fails the
// whole request before any job starts. The crop stays in cache for the jobs.
func checkBackground(ctx context.Context, cache *resources.Cache, data []byte, tier slides.Tier) error {
	if _, err := cache.GetOrCreateBackground(ctx, data, tier.Size()); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.BatchInput("Invalid image file")
	}
	return nil
}

// Generate renders a full batch and assembles the deck. Every call sends exactly one
// terminal event to sink: complete on success, error otherwise. Progress events precede
// it, one per finished slide. Once started the batch ignores cancellation of ctx.
func (s *Service) Generate(ctx context.Context, req BatchRequest, sink Sink) (*Result, error) {
	if sink == nil {
		sink = func(Event) {}
	}
	ctx = context.WithoutCancel(ctx)
	log := s.log.FromContext(ctx)
	started := time.Now()

	fail := func(err error) (*Result, error) {
		log.Warn("batch rejected", "error", err.Error())
		sink(errorEvent(err))
		return nil, err
	}

	if err := req.Validate(); err != nil {
		return fail(err)
	}
	cache := s.newCache()
	tier := slides.FinalTier()
	if err := checkBackground(ctx, cache, req.Background, tier); err != nil {
		return fail(err)
	}

	jobs := specs(req, 0, len(req.Items), tier, slides.FinalFlags())
	log.Info("batch started", "slides", len(jobs), "workers", s.pool.Size())

	rep := NewReporter(len(jobs), sink)
	rep.Start()
	rendered, _, err := s.pool.Run(ctx, render.New(cache), jobs, rep.Done)
	rep.Close()
	if err != nil {
		// Unreachable while ctx is detached.
		return fail(errors.Wrap(err, "pipeline.generate", "batch interrupted"))
	}

	artifact, err := deck.Assemble(rendered, deck.Options{Title: req.Title})
	if err != nil {
		log.Error("deck assembly failed", "error", err.Error())
		sink(errorEvent(err))
		return nil, err
	}
	sink(completeEvent(artifact))

	res := &Result{
		Artifact: artifact,
		Slides:   rendered,
		Failed:   rep.Failed(),
		Stats:    cache.Stats(),
		Duration: time.Since(started),
	}
	log.Info("batch completed",
		"slides", len(rendered),
		"failed", res.Failed,
		"bytes", len(artifact),
		"font_loads", res.Stats.FontLoads,
		"crop_builds", res.Stats.CropBuilds,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// Stream runs Generate in the background and returns its events. The channel is
// buffered for the whole batch, so an abandoned reader never blocks the producer.
// It is closed after the terminal event.
func (s *Service) Stream(ctx context.Context, req BatchRequest) <-chan Event {
	events := make(chan Event, len(req.Items)+2)
	go func() {
		defer close(events)
		_, _ = s.Generate(ctx, req, func(e Event) { events <- e })
	}()
	return events
}

// PreviewRequest renders one item.
type PreviewRequest struct {
	Background []byte
	Item       slides.ContentItem
	Style      *slides.StyleOverride
	// ClientOverlays leaves instructor, subtitle and badge to the caller.
	ClientOverlays bool
}

// Preview is one rendered preview image.
type Preview struct {
	Image       []byte
	ContentType string
	Failed      bool
	Size        [2]int
}

// Preview renders a single slide at the preview tier. Cancelling ctx aborts it
// between stages.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (*Preview, error) {
	if len(req.Background) == 0 {
		return nil, errors.BatchInput("background image is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cache := s.newCache()
	tier := slides.PreviewTier(s.previewScale)
	if err := checkBackground(ctx, cache, req.Background, tier); err != nil {
		return nil, err
	}

	item := req.Item
	if item.Number == 0 {
		item.Number = 1
	}
	flags := slides.RenderFlags{BurnOverlays: !req.ClientOverlays, Format: slides.FormatPNG}
	spec := slides.RenderSpec{
		Background: req.Background,
		Style:      slides.Resolve(req.Style, item.Override),
		Item:       item,
		Tier:       tier,
		Flags:      flags,
	}

	slide, err := s.pool.runJob(ctx, render.New(cache), spec)
	if err != nil {
		return nil, err
	}
	size := tier.Size()
	return &Preview{
		Image:       slide.Image,
		ContentType: render.ContentType(flags.Format),
		Failed:      slide.Failed,
		Size:        [2]int{size.X, size.Y},
	}, nil
}

// PageSlide is one rendered slide of a preview page. Image is a data URL.
type PageSlide struct {
	Index  int    `json:"index"`
	Number int    `json:"number"`
	Image  string `json:"image"`
	Failed bool   `json:"failed,omitempty"`
}

// Page is one page of batch previews.
type Page struct {
	TotalPages  int         `json:"total_pages"`
	CurrentPage int         `json:"current_page"`
	PageSize    int         `json:"page_size"`
	TotalItems  int         `json:"total_items"`
	Slides      []PageSlide `json:"slides"`
}

// PreviewPage renders page (1-based) of req at the preview tier through one request-scoped cache.
func (s *Service) PreviewPage(ctx context.Context, req BatchRequest, page, size int) (*Page, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if size == 0 {
		size = DefaultPageSize
	}
	win, err := Paginate(len(req.Items), page, size)
	if err != nil {
		return nil, err
	}

	cache := s.newCache()
	tier := slides.PreviewTier(s.previewScale)
	if err := checkBackground(ctx, cache, req.Background, tier); err != nil {
		return nil, err
	}

	flags := slides.RenderFlags{BurnOverlays: true, Format: slides.FormatPNG}
	rendered, _, err := s.pool.Run(ctx, render.New(cache), specs(req, win.Start, win.End, tier, flags), nil)
	if err != nil {
		return nil, err
	}

	out := &Page{
		TotalPages:  win.TotalPages,
		CurrentPage: page,
		PageSize:    size,
		TotalItems:  len(req.Items),
		Slides:      make([]PageSlide, len(rendered)),
	}
	prefix := "data:" + render.ContentType(flags.Format) + ";base64,"
	for i, r := range rendered {
		out.Slides[i] = PageSlide{
			Index:  r.Index,
			Number: r.Number,
			Image:  prefix + base64.StdEncoding.EncodeToString(r.Image),
			Failed: r.Failed,
		}
	}
	return out, nil
}
