package handlers

import (
	"net/http"
	"strconv"

	"lekhaslides/internal/httpkit"
	"lekhaslides/internal/pipeline"
)

// FallbackHeader is set on a preview that could not be rendered normally.
const FallbackHeader = "X-Slide-Fallback"

// batchForm reads background, questions_data, config and title. Unless
// requireBackground is set, a missing background is left for the pipeline to reject.
func (h *Handler) batchForm(w http.ResponseWriter, r *http.Request, requireBackground bool) (pipeline.BatchRequest, error) {
	var req pipeline.BatchRequest
	if err := h.parseForm(w, r); err != nil {
		return req, err
	}
	read := optionalBackground
	if requireBackground {
		read = readBackground
	}
	bg, err := read(r)
	if err != nil {
		return req, err
	}
	req.Background = bg
	if err := decodeField(r, "questions_data", true, &req.Items); err != nil {
		return req, err
	}
	if err := decodeField(r, "config", false, &req.Style); err != nil {
		return req, err
	}
	req.Title = r.FormValue("title")
	return req, nil
}

// GeneratePreview renders one slide as image/png. With ?overlays=client the
// instructor, subtitle and badge are left out for the client to draw.
func (h *Handler) GeneratePreview(w http.ResponseWriter, r *http.Request) error {
	if err := h.parseForm(w, r); err != nil {
		return err
	}
	bg, err := readBackground(r)
	if err != nil {
		return err
	}
	req := pipeline.PreviewRequest{
		Background:     bg,
		ClientOverlays: r.URL.Query().Get("overlays") == "client",
	}
	if err := decodeField(r, "question_data", true, &req.Item); err != nil {
		return err
	}
	if err := decodeField(r, "config", false, &req.Style); err != nil {
		return err
	}

	preview, err := h.svc.Preview(r.Context(), req)
	if err != nil {
		return ctxError(err, "generate preview")
	}

	w.Header().Set("Content-Type", preview.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(preview.Image)))
	w.Header().Set("Cache-Control", "no-store")
	if preview.Failed {
		w.Header().Set(FallbackHeader, "true")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(preview.Image)
	return nil
}

// GeneratePPTX renders the whole batch and streams progress, then the deck, as
// server-sent events. Malformed form fields are rejected as JSON errors; every
// other failure, including a missing background, arrives as an error event.
func (h *Handler) GeneratePPTX(w http.ResponseWriter, r *http.Request) error {
	req, err := h.batchForm(w, r, false)
	if err != nil {
		return err
	}
	log := h.log.FromContext(r.Context())

	stream := httpkit.NewEventStream(w)
	for e := range h.svc.Stream(r.Context(), req) {
		if err := stream.Send(e); err != nil {
			// The batch keeps running; its events are buffered and dropped.
			log.Info("event stream client went away", "error", err.Error())
			return nil
		}
	}
	return nil
}

// PreviewBatch renders one page of the batch at preview quality.
func (h *Handler) PreviewBatch(w http.ResponseWriter, r *http.Request) error {
	req, err := h.batchForm(w, r, true)
	if err != nil {
		return err
	}
	page, err := intField(r, "page", 1)
	if err != nil {
		return err
	}
	size, err := intField(r, "page_size", h.pageSize)
	if err != nil {
		return err
	}

	out, err := h.svc.PreviewPage(r.Context(), req, page, size)
	if err != nil {
		return ctxError(err, "preview batch")
	}
	httpkit.WriteJSON(w, r, http.StatusOK, out)
	return nil
}
