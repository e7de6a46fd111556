package httpapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"lekhaslides/internal/adapters/storage/localfs"
	"lekhaslides/internal/config"
	"lekhaslides/internal/deck"
	"lekhaslides/internal/httpapi/handlers"
	"lekhaslides/internal/httpkit"
	"lekhaslides/internal/models"
	"lekhaslides/internal/pipeline"
	"lekhaslides/internal/pkg/logger"
	"lekhaslides/internal/ports"
	"lekhaslides/internal/repositories"
)

func testConfig() config.Config {
	return config.Config{
		CORSAllowedOrigins: []string{"*"},
		MaxUploadBytes:     8 << 20,
		PageSize:           20,
		RequestTimeout:     30 * time.Second,
		QueueName:          "test:batches",
		DeckURLTTL:         time.Minute,
	}
}

func testService() *pipeline.Service {
	return pipeline.NewService(pipeline.Options{Concurrency: 2, PreviewScale: 0.1})
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return NewRouter(Deps{Service: testService(), Config: testConfig(), Log: logger.Discard()})
}

func backgroundPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 48, 27))
	for y := 0; y < 27; y++ {
		for x := 0; x < 48; x++ {
			img.Set(x, y, color.NRGBA{20, 40, 60, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func questions(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"number":%d,"question":"Question %d","pointers":[["Label","Detail"]]}`, i+1, i+1)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// multipartRequest builds a POST with a background file and the given fields.
func multipartRequest(t *testing.T, target string, background []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if background != nil {
		fw, err := mw.CreateFormFile("background", "bg.png")
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(background)
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httpkit.ErrorBody {
	t.Helper()
	var env httpkit.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return env.Error
}

func sseFrames(t *testing.T, body string) []pipeline.Event {
	t.Helper()
	var out []pipeline.Event
	for _, frame := range strings.Split(strings.TrimSpace(body), "\n\n") {
		payload, ok := strings.CutPrefix(frame, "data: ")
		if !ok {
			t.Fatalf("malformed frame %q", frame)
		}
		var e pipeline.Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			t.Fatalf("decode frame %q: %v", payload, err)
		}
		out = append(out, e)
	}
	return out
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" {
		t.Errorf("unexpected body %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthDeep(t *testing.T) {
	tests := []struct {
		name   string
		redis  error
		status string
	}{
		{"all ok", nil, "healthy"},
		{"redis down", errors.New("connection refused"), "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handlers.New(handlers.Deps{Service: testService(), DB: pinger{}, Redis: pinger{err: tt.redis}})
			rec := httptest.NewRecorder()
			routes(h, testConfig(), logger.Discard()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health?deep=true", nil))

			var body struct {
				Status string                    `json:"status"`
				Checks map[string]map[string]any `json:"checks"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Status != tt.status {
				t.Errorf("status = %q, want %q", body.Status, tt.status)
			}
			if body.Checks["postgres"]["status"] != "ok" {
				t.Errorf("unexpected postgres check %v", body.Checks["postgres"])
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/generate-preview", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestGeneratePreview(t *testing.T) {
	req := multipartRequest(t, "/api/generate-preview", backgroundPNG(t), map[string]string{
		"question_data": `{"number":1,"question":"Test Q","pointers":[["Label","Content"]]}`,
		"config":        `{"instructor_name":"Test","font_family":"Chalk"}`,
	})
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 192 || b.Dy() != 108 {
		t.Errorf("preview size = %v", b.Size())
	}
	if rec.Header().Get(handlers.FallbackHeader) != "" {
		t.Error("a valid preview must not be a fallback")
	}
}

func TestGeneratePreviewErrors(t *testing.T) {
	tests := []struct {
		name       string
		background []byte
		fields     map[string]string
		status     int
		code       string
		message    string
	}{
		{
			name:       "invalid background",
			background: []byte("definitely not an image"),
			fields:     map[string]string{"question_data": `{"question":"Q"}`},
			status:     http.StatusBadRequest,
			code:       "BATCH_INPUT_ERROR",
			message:    "Invalid image file",
		},
		{
			name:    "missing background",
			fields:  map[string]string{"question_data": `{"question":"Q"}`},
			status:  http.StatusBadRequest,
			code:    "BATCH_INPUT_ERROR",
			message: "background image is required",
		},
		{
			name:       "missing question",
			background: backgroundPNG(t),
			status:     http.StatusBadRequest,
			code:       "VALIDATION_ERROR",
			message:    "question_data is required",
		},
		{
			name:       "malformed config",
			background: backgroundPNG(t),
			fields:     map[string]string{"question_data": `{"question":"Q"}`, "config": `{"font_family":`},
			status:     http.StatusBadRequest,
			code:       "VALIDATION_ERROR",
			message:    "invalid JSON in config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestRouter(t).ServeHTTP(rec, multipartRequest(t, "/api/generate-preview", tt.background, tt.fields))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			body := decodeError(t, rec)
			if body.Code != tt.code || body.Message != tt.message {
				t.Errorf("got %s %q, want %s %q", body.Code, body.Message, tt.code, tt.message)
			}
		})
	}
}

func TestGeneratePPTXStream(t *testing.T) {
	req := multipartRequest(t, "/api/generate-pptx", backgroundPNG(t), map[string]string{
		"questions_data": questions(3),
		"config":         `{"badge_text":"Module 1"}`,
	})
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	events := sseFrames(t, rec.Body.String())
	if len(events) != 4 {
		t.Fatalf("expected 3 progress events and complete, got %d", len(events))
	}
	for i, e := range events[:3] {
		if e.Type != pipeline.EventProgress || e.Current != i+1 || e.Total != 3 {
			t.Errorf("event %d = %+v", i, e)
		}
	}
	done := events[3]
	if done.Type != pipeline.EventComplete || len(done.File) == 0 {
		t.Fatalf("unexpected terminal event %+v", done)
	}
	if _, err := zip.NewReader(bytes.NewReader(done.File), int64(len(done.File))); err != nil {
		t.Errorf("complete event does not carry a deck: %v", err)
	}
}

func TestGeneratePPTXBackgroundErrors(t *testing.T) {
	tests := []struct {
		name       string
		background []byte
		message    string
	}{
		{"undecodable", []byte("not an image"), "Invalid image file"},
		{"missing", nil, "background image is required"},
		{"empty", []byte{}, "background image is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := multipartRequest(t, "/api/generate-pptx", tt.background, map[string]string{
				"questions_data": questions(2),
			})
			rec := httptest.NewRecorder()
			newTestRouter(t).ServeHTTP(rec, req)

			if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
				t.Fatalf("content type = %q: %s", ct, rec.Body.String())
			}
			events := sseFrames(t, rec.Body.String())
			if len(events) != 1 || events[0].Type != pipeline.EventError || events[0].Message != tt.message {
				t.Fatalf("expected a single error event %q, got %+v", tt.message, events)
			}
		})
	}
}

func TestPreviewBatch(t *testing.T) {
	req := multipartRequest(t, "/api/preview-batch", backgroundPNG(t), map[string]string{
		"questions_data": questions(25),
		"page":           "2",
		"page_size":      "20",
	})
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var page pipeline.Page
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.TotalPages != 2 || page.CurrentPage != 2 || len(page.Slides) != 5 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Slides[0].Index != 20 || page.Slides[0].Number != 21 {
		t.Errorf("first slide = %+v", page.Slides[0])
	}
	if !strings.HasPrefix(page.Slides[0].Image, "data:image/png;base64,") {
		t.Errorf("image is not a data URL: %.40s", page.Slides[0].Image)
	}
}

func TestPreviewBatchPageOutOfRange(t *testing.T) {
	req := multipartRequest(t, "/api/preview-batch", backgroundPNG(t), map[string]string{
		"questions_data": questions(3),
		"page":           "4",
	})
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Details["field"] != "page" {
		t.Errorf("unexpected details %v", body.Details)
	}
}

func TestPreviewRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.PreviewRate = 0.001
	cfg.PreviewBurst = 1
	router := NewRouter(Deps{Service: testService(), Config: cfg, Log: logger.Discard()})

	codes := make([]int, 2)
	for i := range codes {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, multipartRequest(t, "/api/generate-preview", backgroundPNG(t), map[string]string{
			"question_data": `{"question":"Q"}`,
		}))
		codes[i] = rec.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 429]", codes)
	}
}

func TestAsyncRoutesNeedDependencies(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batches", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without postgres and redis, got %d", rec.Code)
	}
}

type memoryBatches struct {
	mu      sync.Mutex
	batches map[string]*models.Batch
	failErr error
}

func (m *memoryBatches) Create(_ context.Context, b *models.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.Status = models.BatchQueued
	b.CreatedAt = time.Now().UTC()
	cp := *b
	m.batches[b.ID] = &cp
	return nil
}

func (m *memoryBatches) Get(_ context.Context, id string) (*models.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, repositories.ErrBatchNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memoryBatches) List(_ context.Context, status models.BatchStatus, limit int) ([]models.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Batch
	for _, b := range m.batches {
		if status == "" || b.Status == status {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memoryBatches) MarkFailed(_ context.Context, id, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.batches[id].Status, m.batches[id].Error = models.BatchFailed, msg
	return nil
}

type memoryQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *memoryQueue) Push(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, id)
	return nil
}

func TestBatchLifecycle(t *testing.T) {
	ctx := context.Background()
	store := &memoryBatches{batches: map[string]*models.Batch{}}
	q := &memoryQueue{}
	sp := localfs.New(t.TempDir())
	h := handlers.New(handlers.Deps{Service: testService(), Batches: store, Queue: q, SP: sp})
	router := routes(h, testConfig(), logger.Discard())

	// Submit
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "/api/batches", backgroundPNG(t), map[string]string{
		"questions_data": questions(4),
		"title":          "Week 3: Costing",
	}))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Batch models.Batch `json:"batch"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	id := created.Batch.ID
	if !strings.HasPrefix(id, "bat_") || created.Batch.Status != models.BatchQueued || created.Batch.Total != 4 {
		t.Fatalf("unexpected batch %+v", created.Batch)
	}
	if len(q.ids) != 1 || q.ids[0] != id {
		t.Errorf("queue = %v", q.ids)
	}

	// The stored input round-trips into the worker's format.
	rc, _, _, err := sp.GetObject(ctx, models.InputKey(id))
	if err != nil {
		t.Fatalf("input not stored: %v", err)
	}
	var input models.BatchInput
	if err := json.NewDecoder(rc).Decode(&input); err != nil {
		t.Fatal(err)
	}
	rc.Close()
	if len(input.Items) != 4 || len(input.Background) == 0 || input.Title != "Week 3: Costing" {
		t.Errorf("unexpected stored input: %d items, %d background bytes, title %q", len(input.Items), len(input.Background), input.Title)
	}

	// Not downloadable until the worker is done.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batches/"+id+"/deck", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 before the deck exists, got %d", rec.Code)
	}

	// Simulate the worker.
	artifact := []byte("PK\x03\x04 deck")
	if _, err := sp.PutObject(ctx, ports.PutObjectInput{ObjectKey: models.DeckKey(id), Reader: bytes.NewReader(artifact)}); err != nil {
		t.Fatal(err)
	}
	store.mu.Lock()
	store.batches[id].Status = models.BatchDone
	store.batches[id].DeckKey = models.DeckKey(id)
	store.mu.Unlock()

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batches/"+id, nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"DONE"`) {
		t.Errorf("GET batch: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batches/"+id+"/deck", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET deck: %d %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != deck.ContentType {
		t.Errorf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, `filename="Week_3_Costing.pptx"`) {
		t.Errorf("content disposition = %q", cd)
	}
	if got, _ := io.ReadAll(rec.Body); !bytes.Equal(got, artifact) {
		t.Errorf("deck body mismatch")
	}
}

func TestBatchEndpointsErrors(t *testing.T) {
	store := &memoryBatches{batches: map[string]*models.Batch{}}
	q := &memoryQueue{err: errors.New("redis down")}
	h := handlers.New(handlers.Deps{Service: testService(), Batches: store, Queue: q, SP: localfs.New(t.TempDir())})
	router := routes(h, testConfig(), logger.Discard())

	tests := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{"unknown batch", httptest.NewRequest(http.MethodGet, "/api/batches/bat_missing", nil), http.StatusNotFound, "NOT_FOUND"},
		{"bad status filter", httptest.NewRequest(http.MethodGet, "/api/batches?status=LOST", nil), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad limit", httptest.NewRequest(http.MethodGet, "/api/batches?limit=500", nil), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"invalid background", multipartRequest(t, "/api/batches", []byte("nope"), map[string]string{"questions_data": questions(1)}), http.StatusBadRequest, "BATCH_INPUT_ERROR"},
		{"no items", multipartRequest(t, "/api/batches", backgroundPNG(t), map[string]string{"questions_data": "[]"}), http.StatusBadRequest, "BATCH_INPUT_ERROR"},
		{"queue down", multipartRequest(t, "/api/batches", backgroundPNG(t), map[string]string{"questions_data": questions(1)}), http.StatusServiceUnavailable, "UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, tt.req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if body := decodeError(t, rec); body.Code != tt.code {
				t.Errorf("code = %s, want %s", body.Code, tt.code)
			}
		})
	}

	// The batch whose push failed is marked as such.
	for _, b := range store.batches {
		if b.Status != models.BatchFailed {
			t.Errorf("batch %s left %s after a failed push", b.ID, b.Status)
		}
	}
}

func TestPostBatchLogsUnrecordedFailure(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "debug", Format: "json", Output: &buf})
	store := &memoryBatches{batches: map[string]*models.Batch{}, failErr: errors.New("postgres down")}
	q := &memoryQueue{err: errors.New("redis down")}
	h := handlers.New(handlers.Deps{Service: testService(), Log: log, Batches: store, Queue: q, SP: localfs.New(t.TempDir())})
	router := routes(h, testConfig(), log)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "/api/batches", backgroundPNG(t), map[string]string{"questions_data": questions(1)}))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503: %s", rec.Code, rec.Body.String())
	}
	out := buf.String()
	if !strings.Contains(out, "failed to record batch failure") || !strings.Contains(out, "postgres down") {
		t.Errorf("lost MarkFailed error not logged:\n%s", out)
	}
}
