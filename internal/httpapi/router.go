// Package httpapi wires the HTTP routes of the slide API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"lekhaslides/internal/config"
	"lekhaslides/internal/httpapi/handlers"
	"lekhaslides/internal/pipeline"
	"lekhaslides/internal/pkg/logger"
	"lekhaslides/internal/pkg/middleware"
	"lekhaslides/internal/ports"
	"lekhaslides/internal/repositories"
	"lekhaslides/internal/worker/queue"
)

type Deps struct {
	Service *pipeline.Service
	Config  config.Config
	Log     *logger.Logger
	Version string

	// Optional; async batches are mounted only when all three are set.
	Pool *pgxpool.Pool
	RDB  *redis.Client
	SP   ports.StorageProvider
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	cfg := d.Config

	hd := handlers.Deps{
		Service:        d.Service,
		Log:            log,
		MaxUploadBytes: cfg.MaxUploadBytes,
		PageSize:       cfg.PageSize,
		Version:        d.Version,
		SP:             d.SP,
		DeckURLTTL:     cfg.DeckURLTTL,
	}
	if d.Pool != nil {
		hd.DB = d.Pool
	}
	if d.RDB != nil {
		q := queue.NewRedisQueue(d.RDB, cfg.QueueName)
		hd.Redis = q
		if d.Pool != nil && d.SP != nil {
			hd.Batches = repositories.NewBatchRepository(d.Pool)
			hd.Queue = q
		}
	}
	return routes(handlers.New(hd), cfg, log)
}

func routes(h *handlers.Handler, cfg config.Config, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))

	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader, handlers.FallbackHeader, "Location"},
		AllowCredentials: false,
		MaxAge:           600,
	}))

	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		// ---- PREVIEWS ----
		r.Group(func(r chi.Router) {
			if cfg.PreviewRate > 0 {
				burst := max(cfg.PreviewBurst, 1)
				r.Use(middleware.RateLimit(rate.NewLimiter(rate.Limit(cfg.PreviewRate), burst)))
			}
			timeout := cfg.RequestTimeout
			if timeout <= 0 {
				timeout = 30 * time.Second
			}
			r.Use(middleware.Timeout(timeout))

			r.Post("/generate-preview", wrap(h.GeneratePreview))
			r.Post("/preview-batch", wrap(h.PreviewBatch))
		})

		// ---- GENERATION ----
		// Streams for as long as the batch runs.
		r.Post("/generate-pptx", wrap(h.GeneratePPTX))

		// ---- ASYNC BATCHES ----
		if h.AsyncEnabled() {
			r.Post("/batches", wrap(h.PostBatch))
			r.Get("/batches", wrap(h.ListBatches))
			r.Get("/batches/{batchId}", wrap(h.GetBatch))
			r.Get("/batches/{batchId}/deck", wrap(h.GetBatchDeck))
		}
	})

	return r
}
