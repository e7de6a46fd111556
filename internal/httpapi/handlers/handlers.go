// Package handlers implements the HTTP endpoints of the slide API.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lekhaslides/internal/models"
	"lekhaslides/internal/pipeline"
	"lekhaslides/internal/pkg/errors"
	"lekhaslides/internal/pkg/logger"
	"lekhaslides/internal/ports"
)

// DefaultMaxUploadBytes bounds a multipart request when none is configured.
const DefaultMaxUploadBytes = 64 << 20

// multipartMemory is how much of a form is kept in memory before spilling to disk.
const multipartMemory = 32 << 20

// BatchStore is what the async endpoints need from the batch repository.
type BatchStore interface {
	Create(ctx context.Context, b *models.Batch) error
	Get(ctx context.Context, id string) (*models.Batch, error)
	List(ctx context.Context, status models.BatchStatus, limit int) ([]models.Batch, error)
	MarkFailed(ctx context.Context, id, msg string) error
}

// BatchQueue hands batch ids to the worker.
type BatchQueue interface {
	Push(ctx context.Context, id string) error
}

// Pinger is a dependency the deep health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Service        *pipeline.Service
	Log            *logger.Logger
	MaxUploadBytes int64
	PageSize       int
	Version        string

	// Async batches; all three are set or the endpoints are not mounted.
	Batches    BatchStore
	Queue      BatchQueue
	SP         ports.StorageProvider
	DeckURLTTL time.Duration

	// Health probes, optional.
	DB    Pinger
	Redis Pinger
}

type Handler struct {
	svc        *pipeline.Service
	log        *logger.Logger
	maxUpload  int64
	pageSize   int
	version    string
	batches    BatchStore
	queue      BatchQueue
	sp         ports.StorageProvider
	deckURLTTL time.Duration
	db         Pinger
	redis      Pinger
}

func New(d Deps) *Handler {
	if d.Log == nil {
		d.Log = logger.Discard()
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if d.PageSize <= 0 {
		d.PageSize = pipeline.DefaultPageSize
	}
	if d.DeckURLTTL <= 0 {
		d.DeckURLTTL = 15 * time.Minute
	}
	return &Handler{
		svc:        d.Service,
		log:        d.Log.WithComponent("http"),
		maxUpload:  d.MaxUploadBytes,
		pageSize:   d.PageSize,
		version:    d.Version,
		batches:    d.Batches,
		queue:      d.Queue,
		sp:         d.SP,
		deckURLTTL: d.DeckURLTTL,
		db:         d.DB,
		redis:      d.Redis,
	}
}

// AsyncEnabled reports whether the batch endpoints have their dependencies.
func (h *Handler) AsyncEnabled() bool {
	return h.batches != nil && h.queue != nil && h.sp != nil
}

// Log is the handler's logger, for error rendering in the router.
func (h *Handler) Log() *logger.Logger { return h.log }

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.Validationf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return errors.Validation("invalid multipart form")
	}
	return nil
}

// readBackground returns the uploaded background bytes.
func readBackground(r *http.Request) ([]byte, error) {
	data, err := optionalBackground(r)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.BatchInput("background image is required").WithField("field", "background")
	}
	return data, nil
}

// optionalBackground returns the uploaded background bytes, or nil when the file
// is absent or empty.
func optionalBackground(r *http.Request) ([]byte, error) {
	f, _, err := r.FormFile("background")
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "handlers.background", "failed to read background upload")
	}
	return data, nil
}

// decodeField unmarshals the JSON form field name into v. An absent optional field
// leaves v untouched.
func decodeField(r *http.Request, name string, required bool, v any) error {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		if required {
			return errors.ValidationField(name, name+" is required")
		}
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return errors.ValidationField(name, "invalid JSON in "+name).WithField("error", err.Error())
	}
	return nil
}

// intField parses an optional integer form or query value.
func intField(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.ValidationField(name, name+" must be an integer")
	}
	return v, nil
}

// ctxError reports an ended request context as TIMEOUT or CANCELED.
func ctxError(err error, op string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Timeout(op)
	case errors.Is(err, context.Canceled):
		return errors.New(errors.CodeCanceled, "request canceled")
	default:
		return err
	}
}
