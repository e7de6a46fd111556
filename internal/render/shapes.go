package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"

	"lekhaslides/internal/layout"
)

// fillRoundedRect paints box with radius r. A positive stroke width paints an outline
// of that width in stroke, then the inset interior in fill.
func fillRoundedRect(dst draw.Image, box layout.Box, r, stroke float64, fill, strokeColor *color.NRGBA) {
	if stroke > 0 && strokeColor != nil {
		paintRoundedRect(dst, box, r, *strokeColor)
		box = layout.Box{X: box.X + stroke, Y: box.Y + stroke, W: box.W - 2*stroke, H: box.H - 2*stroke}
		r = math.Max(0, r-stroke)
	}
	if fill != nil && box.W > 0 && box.H > 0 {
		paintRoundedRect(dst, box, r, *fill)
	}
}

func paintRoundedRect(dst draw.Image, box layout.Box, r float64, c color.NRGBA) {
	b := dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	r = math.Min(r, math.Min(box.W, box.H)/2)

	x0 := float32(box.X - float64(b.Min.X))
	y0 := float32(box.Y - float64(b.Min.Y))
	x1 := x0 + float32(box.W)
	y1 := y0 + float32(box.H)
	rr := float32(r)

	z.MoveTo(x0+rr, y0)
	z.LineTo(x1-rr, y0)
	z.QuadTo(x1, y0, x1, y0+rr)
	z.LineTo(x1, y1-rr)
	z.QuadTo(x1, y1, x1-rr, y1)
	z.LineTo(x0+rr, y1)
	z.QuadTo(x0, y1, x0, y1-rr)
	z.LineTo(x0, y0+rr)
	z.QuadTo(x0, y0, x0+rr, y0)
	z.ClosePath()
	z.Draw(dst, b, image.NewUniform(c), image.Point{})
}

// fillRect paints an axis-aligned rectangle.
func fillRect(dst draw.Image, box layout.Box, c color.NRGBA) {
	draw.Draw(dst, box.Rect().Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, draw.Over)
}
