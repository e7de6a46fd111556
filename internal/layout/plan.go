package layout

import (
	"image"
	"image/color"
	"math"

	"lekhaslides/internal/slides"
)

// Box is an axis-aligned rectangle in canvas pixels.
type Box struct {
	X, Y, W, H float64
}

func (b Box) scale(f float64) Box {
	return Box{X: b.X * f, Y: b.Y * f, W: b.W * f, H: b.H * f}
}

// Rect rounds b to integer pixels.
func (b Box) Rect() image.Rectangle {
	return image.Rect(
		int(math.Round(b.X)), int(math.Round(b.Y)),
		int(math.Round(b.X+b.W)), int(math.Round(b.Y+b.H)),
	)
}

// FontRef names the face a run is drawn with.
type FontRef struct {
	Family slides.FontFamily
	Size   float64
}

// TextRun is one line of text with its baseline origin.
type TextRun struct {
	Text  string
	X, Y  float64
	Font  FontRef
	Color color.NRGBA
}

func (t TextRun) scale(f float64) TextRun {
	t.X *= f
	t.Y *= f
	t.Font.Size *= f
	return t
}

// OverlayKind names a decorative element.
type OverlayKind string

const (
	OverlayInstructor OverlayKind = "instructor"
	OverlaySubtitle   OverlayKind = "subtitle"
	OverlayBadge      OverlayKind = "badge"
)

// Overlay is a decorative element drawn above the content, optionally rotated about its center.
type Overlay struct {
	Kind     OverlayKind
	Box      Box
	Rotation float64
	Text     TextRun
	// Fill and Stroke are only set for boxed overlays (the badge).
	Fill        *color.NRGBA
	Stroke      *color.NRGBA
	StrokeWidth float64
	Radius      float64
}

func (o Overlay) scale(f float64) Overlay {
	o.Box = o.Box.scale(f)
	o.Text = o.Text.scale(f)
	o.StrokeWidth *= f
	o.Radius *= f
	return o
}

// DrawPlan is the complete geometry of one slide at one tier.
type DrawPlan struct {
	Number int
	Scale  float64
	Canvas image.Point
	// Content is the region the content block wraps within.
	Content   Box
	Texts     []TextRun
	Image     *Box
	Overlays  []Overlay
	Watermark *TextRun
}

// Scaled returns a copy of p with every coordinate and font size multiplied by f.
func (p *DrawPlan) Scaled(f float64) *DrawPlan {
	out := &DrawPlan{
		Number:  p.Number,
		Scale:   p.Scale * f,
		Canvas:  image.Pt(int(math.Round(float64(p.Canvas.X)*f)), int(math.Round(float64(p.Canvas.Y)*f))),
		Content: p.Content.scale(f),
	}
	out.Texts = make([]TextRun, len(p.Texts))
	for i, t := range p.Texts {
		out.Texts[i] = t.scale(f)
	}
	if p.Image != nil {
		b := p.Image.scale(f)
		out.Image = &b
	}
	out.Overlays = make([]Overlay, len(p.Overlays))
	for i, o := range p.Overlays {
		out.Overlays[i] = o.scale(f)
	}
	if p.Watermark != nil {
		w := p.Watermark.scale(f)
		out.Watermark = &w
	}
	return out
}
