package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"

	"lekhaslides/internal/pkg/errors"
	"lekhaslides/internal/render"
	"lekhaslides/internal/resources"
	"lekhaslides/internal/slides"
)

func backgroundPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 36))
	for y := 0; y < 36; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.NRGBA{30, 50, 40, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func items(n int) []slides.ContentItem {
	out := make([]slides.ContentItem, n)
	for i := range out {
		out[i] = slides.ContentItem{
			Text:     fmt.Sprintf("Question **%d** about costing", i+1),
			Pointers: []slides.Pointer{{Label: "Point", Detail: "Detail text"}},
		}
	}
	return out
}

func newTestService() *Service {
	return NewService(Options{Concurrency: 4, PreviewScale: 0.1})
}

func collect(t *testing.T, svc *Service, req BatchRequest) ([]Event, *Result, error) {
	t.Helper()
	var mu sync.Mutex
	var events []Event
	res, err := svc.Generate(context.Background(), req, func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	return events, res, err
}

func slideCount(t *testing.T, artifact []byte) int {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(artifact), int64(len(artifact)))
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			n++
		}
	}
	return n
}

func TestGenerateCorruptInlineImage(t *testing.T) {
	svc := newTestService()
	batch := items(3)
	batch[1].Image = []byte("corrupt image bytes")

	events, res, err := collect(t, svc, BatchRequest{Background: backgroundPNG(t), Items: batch})
	if err != nil {
		t.Fatal(err)
	}

	if len(events) != 4 {
		t.Fatalf("expected 3 progress + 1 complete, got %d events: %+v", len(events), events)
	}
	for i, e := range events[:3] {
		if e.Type != EventProgress || e.Current != i+1 || e.Total != 3 {
			t.Errorf("event %d = %+v", i, e)
		}
	}
	last := events[3]
	if last.Type != EventComplete || len(last.File) == 0 {
		t.Fatalf("expected complete event, got %+v", last)
	}
	if !bytes.Equal(last.File, res.Artifact) {
		t.Error("complete event must carry the artifact")
	}
	if got := slideCount(t, res.Artifact); got != 3 {
		t.Errorf("deck has %d slides, want 3", got)
	}

	if res.Failed != 1 {
		t.Errorf("expected one failed slide, got %d", res.Failed)
	}
	for i, s := range res.Slides {
		if s.Index != i || s.Number != i+1 {
			t.Errorf("slide %d out of order: %+v", i, s)
		}
		if s.Failed != (i == 1) {
			t.Errorf("slide %d failed=%v", i, s.Failed)
		}
	}
	if !errors.IsCode(res.Slides[1].Err, errors.CodeRender) {
		t.Errorf("expected render error on slide 2, got %v", res.Slides[1].Err)
	}

	if res.Stats.SourceDecodes != 1 || res.Stats.CropBuilds != 1 {
		t.Errorf("background should be decoded and cropped once, got %+v", res.Stats)
	}
}

func TestGenerateBatchInputErrors(t *testing.T) {
	bg := backgroundPNG(t)
	tests := []struct {
		name    string
		req     BatchRequest
		message string
	}{
		{"empty background", BatchRequest{Items: items(2)}, "background image is required"},
		{"no items", BatchRequest{Background: bg}, "at least one content item is required"},
		{"undecodable background", BatchRequest{Background: []byte("nope"), Items: items(2)}, "Invalid image file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, res, err := collect(t, newTestService(), tt.req)
			if !errors.IsBatchInput(err) {
				t.Fatalf("expected batch input error, got %v", err)
			}
			if res != nil {
				t.Error("no result expected")
			}
			if len(events) != 1 || events[0].Type != EventError || events[0].Message != tt.message {
				t.Errorf("expected a single error event %q, got %+v", tt.message, events)
			}
		})
	}
}

func TestGenerateIgnoresCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := newTestService().Generate(ctx, BatchRequest{Background: backgroundPNG(t), Items: items(2)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Slides) != 2 {
		t.Errorf("expected the batch to run to completion, got %d slides", len(res.Slides))
	}
}

func TestStreamEndsWithOneTerminalEvent(t *testing.T) {
	svc := newTestService()
	ch := svc.Stream(context.Background(), BatchRequest{Background: backgroundPNG(t), Items: items(5)})

	var progress, terminal int
	prev := 0
	for e := range ch {
		switch e.Type {
		case EventProgress:
			progress++
			if e.Current <= prev || e.Current > e.Total {
				t.Errorf("non-monotonic progress %d after %d", e.Current, prev)
			}
			prev = e.Current
		default:
			terminal++
			if e.Type != EventComplete {
				t.Errorf("unexpected terminal %+v", e)
			}
		}
	}
	if progress != 5 || terminal != 1 || prev != 5 {
		t.Errorf("progress=%d terminal=%d last=%d", progress, terminal, prev)
	}
}

func TestReporterCountsConcurrentCompletions(t *testing.T) {
	const total = 100
	var events []Event
	rep := NewReporter(total, func(e Event) { events = append(events, e) })
	rep.Start()

	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rep.Done(slides.RenderedSlide{Index: i, Failed: i%10 == 0})
		}(i)
	}
	wg.Wait()
	rep.Close()

	if len(events) != total {
		t.Fatalf("got %d events", len(events))
	}
	for i, e := range events {
		if e.Current != i+1 || e.Total != total {
			t.Fatalf("event %d = %+v", i, e)
		}
	}
	if rep.Failed() != 10 || rep.Current() != total {
		t.Errorf("failed=%d current=%d", rep.Failed(), rep.Current())
	}
}

func TestPoolJobStates(t *testing.T) {
	cache := resources.NewCache(resources.NewFontLibrary(""), nil, nil)
	req := BatchRequest{Background: backgroundPNG(t), Items: items(6)}
	req.Items[4].Image = []byte("broken")
	jobs := specs(req, 0, 6, slides.PreviewTier(0.1), slides.FinalFlags())

	var mu sync.Mutex
	seen := map[int]bool{}
	out, states, err := NewPool(2, nil).Run(context.Background(), render.New(cache), jobs, func(s slides.RenderedSlide) {
		mu.Lock()
		seen[s.Index] = true
		mu.Unlock()
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 6 {
		t.Errorf("done called for %d jobs", len(seen))
	}
	for i, st := range states {
		want := JobSucceeded
		if i == 4 {
			want = JobFailedFallback
		}
		if st != want {
			t.Errorf("job %d state %s, want %s", i, st, want)
		}
		if len(out[i].Image) == 0 {
			t.Errorf("job %d has no image", i)
		}
	}
}

func TestPoolStopsOnCancel(t *testing.T) {
	cache := resources.NewCache(resources.NewFontLibrary(""), nil, nil)
	req := BatchRequest{Background: backgroundPNG(t), Items: items(3)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, states, err := NewPool(2, nil).Run(ctx, render.New(cache), specs(req, 0, 3, slides.PreviewTier(0.1), slides.FinalFlags()), nil)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for i, st := range states {
		if st != JobQueued {
			t.Errorf("job %d ran after cancel: %s", i, st)
		}
	}
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name              string
		total, page, size int
		want              Window
		wantErr           errors.Code
	}{
		{"first page", 25, 1, 20, Window{Start: 0, End: 20, TotalPages: 2}, ""},
		{"last partial page", 25, 2, 20, Window{Start: 20, End: 25, TotalPages: 2}, ""},
		{"exact fit", 40, 2, 20, Window{Start: 20, End: 40, TotalPages: 2}, ""},
		{"single item", 1, 1, 20, Window{Start: 0, End: 1, TotalPages: 1}, ""},
		{"page zero", 25, 0, 20, Window{}, errors.CodeValidation},
		{"past the end", 25, 3, 20, Window{}, errors.CodeValidation},
		{"bad size", 25, 1, 0, Window{}, errors.CodeValidation},
		{"no items", 0, 1, 20, Window{}, errors.CodeBatchInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Paginate(tt.total, tt.page, tt.size)
			if tt.wantErr != "" {
				if !errors.IsCode(err, tt.wantErr) {
					t.Errorf("expected %s, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPreviewPage(t *testing.T) {
	svc := newTestService()
	req := BatchRequest{Background: backgroundPNG(t), Items: items(25)}

	page, err := svc.PreviewPage(context.Background(), req, 2, 20)
	if err != nil {
		t.Fatal(err)
	}
	if page.TotalPages != 2 || page.CurrentPage != 2 || len(page.Slides) != 5 {
		t.Fatalf("unexpected page %+v", page)
	}
	for i, s := range page.Slides {
		if s.Index != 20+i || s.Number != 21+i {
			t.Errorf("slide %d = index %d number %d", i, s.Index, s.Number)
		}
		if !strings.HasPrefix(s.Image, "data:image/png;base64,") {
			t.Errorf("slide %d image is not a png data url", i)
		}
	}

	first, err := svc.PreviewPage(context.Background(), req, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Slides) != 20 || first.PageSize != DefaultPageSize {
		t.Errorf("default page size not applied: %d slides", len(first.Slides))
	}

	if _, err := svc.PreviewPage(context.Background(), req, 3, 20); !errors.IsValidation(err) {
		t.Errorf("expected validation error past the last page, got %v", err)
	}
}

func TestPreview(t *testing.T) {
	svc := newTestService()
	item := slides.ContentItem{Text: "Define costing", Pointers: []slides.Pointer{{Detail: "Only detail"}}}

	p, err := svc.Preview(context.Background(), PreviewRequest{Background: backgroundPNG(t), Item: item})
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(p.Image))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 192 || b.Dy() != 108 || p.Size != [2]int{192, 108} {
		t.Errorf("unexpected preview size %v", b)
	}
	if p.Failed || p.ContentType != "image/png" {
		t.Errorf("unexpected preview %+v", p)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Preview(ctx, PreviewRequest{Background: backgroundPNG(t), Item: item}); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if _, err := svc.Preview(context.Background(), PreviewRequest{Item: item}); !errors.IsBatchInput(err) {
		t.Errorf("expected batch input error, got %v", err)
	}
	if _, err := svc.Preview(context.Background(), PreviewRequest{Background: []byte("x"), Item: item}); !errors.IsBatchInput(err) {
		t.Errorf("expected invalid image error, got %v", err)
	}
}
