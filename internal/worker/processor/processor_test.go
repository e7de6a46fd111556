package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"

	"lekhaslides/internal/adapters/storage/localfs"
	"lekhaslides/internal/models"
	"lekhaslides/internal/pipeline"
	apperrors "lekhaslides/internal/pkg/errors"
	"lekhaslides/internal/pkg/logger"
	"lekhaslides/internal/ports"
	"lekhaslides/internal/slides"
)

type fakeStore struct {
	mu       sync.Mutex
	batches  map[string]*models.Batch
	progress []int
}

func newFakeStore(b *models.Batch) *fakeStore {
	return &fakeStore{batches: map[string]*models.Batch{b.ID: b}}
}

func (s *fakeStore) Get(_ context.Context, id string) (*models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, errors.New("batch not found")
	}
	cp := *b
	return &cp, nil
}

func (s *fakeStore) MarkRunning(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[id].Status = models.BatchRunning
	return nil
}

func (s *fakeStore) UpdateProgress(_ context.Context, id string, completed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, completed)
	s.batches[id].Completed = completed
	return nil
}

func (s *fakeStore) MarkDone(_ context.Context, id, deckKey string, size int64, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.batches[id]
	b.Status, b.DeckKey, b.DeckSize, b.FailedSlides, b.Completed = models.BatchDone, deckKey, size, failed, b.Total
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[id].Status, s.batches[id].Error = models.BatchFailed, msg
	return nil
}

// fakeGenerator reports one progress event per item and returns a fixed artifact.
type fakeGenerator struct {
	err   error
	calls int
}

func (g *fakeGenerator) Generate(_ context.Context, req pipeline.BatchRequest, sink pipeline.Sink) (*pipeline.Result, error) {
	g.calls++
	if g.err != nil {
		sink(pipeline.Event{Type: pipeline.EventError, Message: apperrors.GetMessage(g.err)})
		return nil, g.err
	}
	for i := range req.Items {
		sink(pipeline.Event{Type: pipeline.EventProgress, Current: i + 1, Total: len(req.Items)})
	}
	return &pipeline.Result{Artifact: []byte("PK fake deck"), Failed: 1}, nil
}

func putInput(t *testing.T, sp ports.StorageProvider, id string, n int) string {
	t.Helper()
	in := models.BatchInput{Title: "Week 1", Background: []byte("bg")}
	for i := 0; i < n; i++ {
		in.Items = append(in.Items, slides.ContentItem{Text: "Question"})
	}
	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := sp.PutObject(context.Background(), ports.PutObjectInput{
		ObjectKey: models.InputKey(id),
		Reader:    bytes.NewReader(raw),
	})
	if err != nil {
		t.Fatal(err)
	}
	return out.ObjectKey
}

func TestProcessBatchSuccess(t *testing.T) {
	ctx := context.Background()
	sp := localfs.New(t.TempDir())
	key := putInput(t, sp, "bat_1", 5)
	store := newFakeStore(&models.Batch{ID: "bat_1", Status: models.BatchQueued, Total: 5, InputKey: key})
	gen := &fakeGenerator{}

	p := New(Deps{Store: store, Generator: gen, SP: sp, CleanupInputs: true, Log: logger.Discard()})
	if err := p.ProcessBatch(ctx, "bat_1"); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	b, _ := store.Get(ctx, "bat_1")
	if b.Status != models.BatchDone || b.DeckKey != models.DeckKey("bat_1") || b.FailedSlides != 1 {
		t.Errorf("unexpected batch %+v", b)
	}
	if b.DeckSize != int64(len("PK fake deck")) {
		t.Errorf("deck size = %d", b.DeckSize)
	}

	// The first event and the final one are always written, the rest are throttled.
	if len(store.progress) < 2 || store.progress[0] != 1 || store.progress[len(store.progress)-1] != 5 {
		t.Errorf("unexpected progress writes %v", store.progress)
	}

	if _, _, _, err := sp.GetObject(ctx, key); !errors.Is(err, ports.ErrObjectNotFound) {
		t.Errorf("input should be deleted, got %v", err)
	}
	rc, _, _, err := sp.GetObject(ctx, b.DeckKey)
	if err != nil {
		t.Fatalf("deck missing: %v", err)
	}
	rc.Close()
}

func TestProcessBatchKeepsInputWithoutCleanup(t *testing.T) {
	ctx := context.Background()
	sp := localfs.New(t.TempDir())
	key := putInput(t, sp, "bat_1", 1)
	store := newFakeStore(&models.Batch{ID: "bat_1", Status: models.BatchQueued, Total: 1, InputKey: key})

	p := New(Deps{Store: store, Generator: &fakeGenerator{}, SP: sp, Log: logger.Discard()})
	if err := p.ProcessBatch(ctx, "bat_1"); err != nil {
		t.Fatal(err)
	}
	rc, _, _, err := sp.GetObject(ctx, key)
	if err != nil {
		t.Fatalf("input should remain: %v", err)
	}
	rc.Close()
}

func TestProcessBatchFailures(t *testing.T) {
	tests := []struct {
		name    string
		gen     *fakeGenerator
		noInput bool
		wantMsg string
	}{
		{"missing input", &fakeGenerator{}, true, "failed to load batch input"},
		{"invalid background", &fakeGenerator{err: apperrors.BatchInput("Invalid image file")}, false, "Invalid image file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			sp := localfs.New(t.TempDir())
			key := models.InputKey("bat_1")
			if !tt.noInput {
				key = putInput(t, sp, "bat_1", 2)
			}
			store := newFakeStore(&models.Batch{ID: "bat_1", Status: models.BatchQueued, Total: 2, InputKey: key})

			p := New(Deps{Store: store, Generator: tt.gen, SP: sp, Log: logger.Discard()})
			if err := p.ProcessBatch(ctx, "bat_1"); err == nil {
				t.Fatal("expected an error")
			}
			b, _ := store.Get(ctx, "bat_1")
			if b.Status != models.BatchFailed {
				t.Errorf("status = %s", b.Status)
			}
			if !strings.Contains(b.Error, tt.wantMsg) {
				t.Errorf("error text %q does not mention %q", b.Error, tt.wantMsg)
			}
		})
	}
}

func TestProcessBatchSkipsDone(t *testing.T) {
	store := newFakeStore(&models.Batch{ID: "bat_1", Status: models.BatchDone, DeckKey: "decks/bat_1.pptx"})
	gen := &fakeGenerator{}
	p := New(Deps{Store: store, Generator: gen, SP: localfs.New(t.TempDir()), Log: logger.Discard()})

	if err := p.ProcessBatch(context.Background(), "bat_1"); err != nil {
		t.Fatal(err)
	}
	if gen.calls != 0 {
		t.Error("a done batch must not render again")
	}
}

func TestProcessBatchWithPipeline(t *testing.T) {
	ctx := context.Background()
	sp := localfs.New(t.TempDir())

	img := image.NewNRGBA(image.Rect(0, 0, 32, 18))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.NRGBA{10, 20, 30, 255})
	var bg bytes.Buffer
	if err := png.Encode(&bg, img); err != nil {
		t.Fatal(err)
	}
	raw, _ := json.Marshal(models.BatchInput{
		Background: bg.Bytes(),
		Items:      []slides.ContentItem{{Text: "First"}, {Text: "Second", Pointers: []slides.Pointer{{Label: "A", Detail: "b"}}}},
	})
	if _, err := sp.PutObject(ctx, ports.PutObjectInput{ObjectKey: models.InputKey("bat_2"), Reader: bytes.NewReader(raw)}); err != nil {
		t.Fatal(err)
	}

	store := newFakeStore(&models.Batch{ID: "bat_2", Status: models.BatchQueued, Total: 2, InputKey: models.InputKey("bat_2")})
	svc := pipeline.NewService(pipeline.Options{Concurrency: 2})
	p := New(Deps{Store: store, Generator: svc, SP: sp, Log: logger.Discard()})

	if err := p.ProcessBatch(ctx, "bat_2"); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	b, _ := store.Get(ctx, "bat_2")
	if b.Status != models.BatchDone || b.FailedSlides != 0 || b.Completed != 2 {
		t.Errorf("unexpected batch %+v", b)
	}
}
