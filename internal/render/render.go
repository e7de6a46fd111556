// Package render turns a layout.DrawPlan into pixels.
//
// Z-order is fixed: background crop, content text, inline image, overlays, watermark.
// Overlays are only burned in when RenderFlags.BurnOverlays is set.
package render

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"

	"lekhaslides/internal/layout"
	"lekhaslides/internal/pkg/errors"
	"lekhaslides/internal/resources"
	"lekhaslides/internal/slides"
)

// Renderer draws slides using one batch's resource cache. It is safe for concurrent use.
type Renderer struct {
	cache *resources.Cache
}

func New(cache *resources.Cache) *Renderer {
	return &Renderer{cache: cache}
}

// Cache returns the resource cache the renderer draws from.
func (r *Renderer) Cache() *resources.Cache { return r.cache }

// Render lays out and draws one slide. Any error is a RENDER_ERROR for spec.Index
// unless ctx ended first.
func (r *Renderer) Render(ctx context.Context, spec slides.RenderSpec) (*image.NRGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bg, err := r.cache.GetOrCreateBackground(ctx, spec.Background, spec.Tier.Size())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Render(err, spec.Index, "background could not be decoded")
	}

	plan, err := layout.Compute(spec.Item, spec.Style, spec.Tier, layout.FromCache(r.cache))
	if err != nil {
		return nil, errors.Render(err, spec.Index, "layout failed")
	}

	var inline image.Image
	if len(spec.Item.Image) > 0 {
		inline, _, err = resources.DecodeImage(spec.Item.Image)
		if err != nil {
			return nil, errors.Render(err, spec.Index, "inline image could not be decoded")
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.Draw(plan, bg, inline, spec.Flags)
}

// Draw composites plan over bg. bg should already match plan.Canvas; it is filled otherwise.
func (r *Renderer) Draw(plan *layout.DrawPlan, bg, inline image.Image, flags slides.RenderFlags) (*image.NRGBA, error) {
	canvas := image.NewNRGBA(image.Rectangle{Max: plan.Canvas})
	if bg != nil {
		if b := bg.Bounds(); b.Dx() != plan.Canvas.X || b.Dy() != plan.Canvas.Y {
			bg = imaging.Fill(bg, plan.Canvas.X, plan.Canvas.Y, imaging.Center, imaging.Lanczos)
		}
		draw.Draw(canvas, canvas.Bounds(), bg, bg.Bounds().Min, draw.Src)
	} else {
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(fallbackFill), image.Point{}, draw.Src)
	}

	for _, run := range plan.Texts {
		if err := r.text(canvas, run, 0, 0); err != nil {
			return nil, err
		}
	}

	if inline != nil && plan.Image != nil {
		drawInline(canvas, inline, *plan.Image)
	}

	if flags.BurnOverlays {
		for _, o := range plan.Overlays {
			if err := r.overlay(canvas, o); err != nil {
				return nil, err
			}
		}
	}

	if plan.Watermark != nil {
		if err := r.text(canvas, *plan.Watermark, 0, 0); err != nil {
			return nil, err
		}
	}
	return canvas, nil
}

// text draws run shifted by (-dx, -dy).
func (r *Renderer) text(dst draw.Image, run layout.TextRun, dx, dy float64) error {
	if run.Text == "" {
		return nil
	}
	h, err := r.cache.GetOrCreateFont(run.Font.Family, run.Font.Size)
	if err != nil {
		return err
	}
	h.Draw(dst, image.NewUniform(run.Color), run.X-dx, run.Y-dy, run.Text)
	return nil
}

// overlay draws o. Rotated overlays are drawn offscreen, rotated about their center
// and composited back centered on the same point.
func (r *Renderer) overlay(dst *image.NRGBA, o layout.Overlay) error {
	if o.Rotation == 0 {
		if o.Fill != nil {
			fillRoundedRect(dst, o.Box, o.Radius, o.StrokeWidth, o.Fill, o.Stroke)
		}
		return r.text(dst, o.Text, 0, 0)
	}

	// Pad so glyph overhang past the measured box survives rotation.
	pad := math.Ceil(o.Box.H / 2)
	w := int(math.Ceil(o.Box.W + 2*pad))
	h := int(math.Ceil(o.Box.H + 2*pad))
	if w <= 0 || h <= 0 {
		return nil
	}
	off := image.NewNRGBA(image.Rect(0, 0, w, h))
	originX, originY := o.Box.X-pad, o.Box.Y-pad
	if o.Fill != nil {
		local := layout.Box{X: pad, Y: pad, W: o.Box.W, H: o.Box.H}
		fillRoundedRect(off, local, o.Radius, o.StrokeWidth, o.Fill, o.Stroke)
	}
	if err := r.text(off, o.Text, originX, originY); err != nil {
		return err
	}

	rotated := imaging.Rotate(off, o.Rotation, color.Transparent)
	cx := o.Box.X + o.Box.W/2
	cy := o.Box.Y + o.Box.H/2
	rb := rotated.Bounds()
	at := image.Pt(int(math.Round(cx-float64(rb.Dx())/2)), int(math.Round(cy-float64(rb.Dy())/2)))
	draw.Draw(dst, rb.Add(at), rotated, rb.Min, draw.Over)
	return nil
}

// drawInline fits img inside box keeping its aspect ratio and centers it.
func drawInline(dst draw.Image, img image.Image, box layout.Box) {
	r := box.Rect()
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return
	}
	fitted := imaging.Fit(img, r.Dx(), r.Dy(), imaging.Lanczos)
	fb := fitted.Bounds()
	at := image.Pt(r.Min.X+(r.Dx()-fb.Dx())/2, r.Min.Y+(r.Dy()-fb.Dy())/2)
	draw.Draw(dst, fb.Add(at), fitted, fb.Min, draw.Over)
}
