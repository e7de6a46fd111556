package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"lekhaslides/internal/layout"
	"lekhaslides/internal/slides"
)

var (
	fallbackFill   = color.NRGBA{R: 0x1e, G: 0x28, B: 0x32, A: 0xff}
	fallbackMarker = color.NRGBA{R: 0xd9, G: 0x3b, B: 0x3b, A: 0xff}
	fallbackText   = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// FallbackMessage is the text of the marker drawn on a slide that failed to render.
func FallbackMessage(number int) string {
	return fmt.Sprintf("Slide %d could not be rendered", number)
}

// Fallback draws the background (or a plain fill when the background is itself the problem)
// with a red banner naming the slide number. It never fails.
func (r *Renderer) Fallback(ctx context.Context, spec slides.RenderSpec) *image.NRGBA {
	size := spec.Tier.Size()
	scale := spec.Tier.Scale

	canvas := image.NewNRGBA(image.Rectangle{Max: size})
	if bg, err := r.cache.GetOrCreateBackground(context.WithoutCancel(ctx), spec.Background, size); err == nil {
		draw.Draw(canvas, canvas.Bounds(), bg, bg.Bounds().Min, draw.Src)
	} else {
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(fallbackFill), image.Point{}, draw.Src)
	}

	const bandHeight, border = 160.0, 12.0
	top := (slides.CanvasHeight - bandHeight) / 2
	band := layout.Box{X: 0, Y: top * scale, W: float64(size.X), H: bandHeight * scale}
	fillRect(canvas, band, fallbackMarker)

	// Frame the whole slide so the failure is visible in a thumbnail strip.
	w, h, b := float64(size.X), float64(size.Y), border*scale
	for _, edge := range []layout.Box{
		{X: 0, Y: 0, W: w, H: b},
		{X: 0, Y: h - b, W: w, H: b},
		{X: 0, Y: 0, W: b, H: h},
		{X: w - b, Y: 0, W: b, H: h},
	} {
		fillRect(canvas, edge, fallbackMarker)
	}

	family := spec.Style.FontFamily
	if family == "" {
		family = slides.FontChalk
	}
	msg := FallbackMessage(spec.Item.Number)
	if font, err := r.cache.GetOrCreateFont(family, 56*scale); err == nil {
		x := (w - font.Measure(msg)) / 2
		y := band.Y + (band.H-font.LineHeight())/2 + font.Ascent()
		font.Draw(canvas, image.NewUniform(fallbackText), x, y, msg)
	}
	return canvas
}
