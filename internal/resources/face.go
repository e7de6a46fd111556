package resources

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"lekhaslides/internal/slides"
)

// FontKey identifies a font handle: family plus pixel size.
type FontKey struct {
	Family slides.FontFamily
	Px     float64
}

func (k FontKey) String() string {
	return fmt.Sprintf("font:%s:%.2f", k.Family, k.Px)
}

// NormalizePx rounds a pixel size so that sizes differing only by float noise share a key.
func NormalizePx(px float64) float64 {
	return math.Round(px*100) / 100
}

// FontHandle measures and draws text at one size. It is safe for concurrent use:
// opentype faces are not, so each call borrows a face from a pool.
type FontHandle struct {
	key     FontKey
	metrics font.Metrics
	faces   sync.Pool
}

func newFontHandle(f *opentype.Font, key FontKey) (*FontHandle, error) {
	opts := &opentype.FaceOptions{
		Size: key.Px,
		DPI:  72,
		// Unhinted advances scale linearly, so a layout measured at one size holds at another.
		Hinting: font.HintingNone,
	}
	first, err := opentype.NewFace(f, opts)
	if err != nil {
		return nil, fmt.Errorf("create face %s: %w", key, err)
	}
	h := &FontHandle{key: key, metrics: first.Metrics()}
	h.faces.New = func() any {
		face, err := opentype.NewFace(f, opts)
		if err != nil {
			// Already succeeded once with identical options.
			panic(err)
		}
		return face
	}
	h.faces.Put(first)
	return h, nil
}

func (h *FontHandle) Key() FontKey { return h.key }

func (h *FontHandle) acquire() font.Face { return h.faces.Get().(font.Face) }

func (h *FontHandle) release(f font.Face) { h.faces.Put(f) }

// Measure returns the advance width of s in pixels.
func (h *FontHandle) Measure(s string) float64 {
	face := h.acquire()
	defer h.release(face)
	return fromFixed(font.MeasureString(face, s))
}

// Ascent is the distance from the top of a line to its baseline.
func (h *FontHandle) Ascent() float64 { return fromFixed(h.metrics.Ascent) }

// LineHeight is the recommended baseline-to-baseline distance.
func (h *FontHandle) LineHeight() float64 { return fromFixed(h.metrics.Height) }

// Draw renders s with its baseline starting at (x, y).
func (h *FontHandle) Draw(dst draw.Image, src image.Image, x, y float64, s string) {
	face := h.acquire()
	defer h.release(face)
	d := font.Drawer{
		Dst:  dst,
		Src:  src,
		Face: face,
		Dot:  fixed.Point26_6{X: toFixed(x), Y: toFixed(y)},
	}
	d.DrawString(s)
}

func fromFixed(v fixed.Int26_6) float64 { return float64(v) / 64 }

func toFixed(v float64) fixed.Int26_6 { return fixed.Int26_6(math.Round(v * 64)) }
