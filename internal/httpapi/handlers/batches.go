package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"lekhaslides/internal/deck"
	"lekhaslides/internal/httpkit"
	"lekhaslides/internal/models"
	"lekhaslides/internal/pkg/errors"
	"lekhaslides/internal/ports"
	"lekhaslides/internal/repositories"
	"lekhaslides/internal/resources"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// PostBatch stores the batch input, records it as QUEUED and hands it to the worker.
func (h *Handler) PostBatch(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	req, err := h.batchForm(w, r, true)
	if err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if _, _, err := resources.DecodeImage(req.Background); err != nil {
		return errors.BatchInput("Invalid image file").WithField("field", "background")
	}

	batch := &models.Batch{
		ID:       models.NewBatchID(),
		Title:    strings.TrimSpace(req.Title),
		Total:    len(req.Items),
		Provider: h.sp.Provider(),
	}
	log := h.log.FromContext(ctx).WithBatchID(batch.ID)

	input, err := json.Marshal(models.BatchInput{
		Title:      batch.Title,
		Background: req.Background,
		Items:      req.Items,
		Style:      req.Style,
	})
	if err != nil {
		return errors.Wrap(err, "handlers.batch", "failed to encode batch input")
	}
	out, err := h.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   models.InputKey(batch.ID),
		ContentType: "application/json",
		Reader:      bytes.NewReader(input),
		Size:        int64(len(input)),
	})
	if err != nil {
		return errors.Wrap(err, "handlers.batch", "failed to store batch input")
	}
	batch.InputKey = out.ObjectKey

	if err := h.batches.Create(ctx, batch); err != nil {
		return errors.Wrap(err, "handlers.batch", "failed to create batch")
	}

	if err := h.queue.Push(ctx, batch.ID); err != nil {
		log.Error("queue push failed", "error", err.Error())
		if err := h.batches.MarkFailed(context.WithoutCancel(ctx), batch.ID, "queue push failed"); err != nil {
			log.Error("failed to record batch failure", "error", err.Error())
		}
		return errors.Unavailable("batch queue")
	}

	log.Info("batch queued", "slides", batch.Total)
	w.Header().Set("Location", "/api/batches/"+batch.ID)
	httpkit.WriteJSON(w, r, http.StatusAccepted, map[string]any{"batch": batch})
	return nil
}

// ListBatches returns the newest batches, optionally filtered by ?status=.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	status := models.BatchStatus(strings.ToUpper(strings.TrimSpace(q.Get("status"))))
	if status != "" && !status.Valid() {
		return errors.ValidationField("status", "status must be one of QUEUED, RUNNING, DONE, FAILED")
	}

	limit := defaultListLimit
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxListLimit {
			return errors.ValidationField("limit", fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
		}
		limit = v
	}

	out, err := h.batches.List(r.Context(), status, limit)
	if err != nil {
		return errors.Wrap(err, "handlers.batches", "failed to list batches")
	}
	httpkit.WriteJSON(w, r, http.StatusOK, map[string]any{"batches": out})
	return nil
}

func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) error {
	batch, err := h.loadBatch(r)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, r, http.StatusOK, map[string]any{"batch": batch})
	return nil
}

// GetBatchDeck redirects to a signed URL when the provider has one, otherwise
// streams the deck.
func (h *Handler) GetBatchDeck(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	batch, err := h.loadBatch(r)
	if err != nil {
		return err
	}
	if !batch.HasDeck() {
		return errors.NotFound("deck", batch.ID).WithField("status", string(batch.Status))
	}

	signed, err := h.sp.GetSignedURL(ctx, batch.DeckKey, h.deckURLTTL)
	if err == nil && signed.URL != "" {
		http.Redirect(w, r, signed.URL, http.StatusFound)
		return nil
	}

	rc, _, size, err := h.sp.GetObject(ctx, batch.DeckKey)
	if err != nil {
		if errors.Is(err, ports.ErrObjectNotFound) {
			return errors.NotFound("deck", batch.ID)
		}
		return errors.Wrap(err, "handlers.deck", "failed to read deck")
	}
	defer rc.Close()

	w.Header().Set("Content-Type", deck.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pptx"`, deckFilename(batch.Title)))
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.FromContext(ctx).Warn("deck download interrupted", "batch_id", batch.ID, "error", err.Error())
	}
	return nil
}

func (h *Handler) loadBatch(r *http.Request) (*models.Batch, error) {
	id := chi.URLParam(r, "batchId")
	batch, err := h.batches.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrBatchNotFound) {
			return nil, errors.NotFound("batch", id)
		}
		return nil, errors.Wrap(err, "handlers.batch", "failed to load batch")
	}
	return batch, nil
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func deckFilename(title string) string {
	name := strings.Trim(unsafeFilename.ReplaceAllString(strings.TrimSpace(title), "_"), "_.")
	if name == "" {
		return "Lekhaslides_Presentation"
	}
	return name
}
