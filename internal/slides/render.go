package slides

import (
	"image"
	"math"
)

// TierKind distinguishes preview from final output.
type TierKind string

const (
	TierPreview TierKind = "preview"
	TierFinal   TierKind = "final"
)

// Tier is a rendering fidelity level: a kind plus its canvas scale relative to 1920x1080.
type Tier struct {
	Kind  TierKind
	Scale float64
}

// FinalTier renders at the full canonical canvas.
func FinalTier() Tier { return Tier{Kind: TierFinal, Scale: 1} }

// PreviewTier renders at scale (0 < scale <= 1).
func PreviewTier(scale float64) Tier {
	if scale <= 0 || scale > 1 {
		scale = 0.5
	}
	return Tier{Kind: TierPreview, Scale: scale}
}

// Size returns the output canvas dimensions for the tier.
func (t Tier) Size() image.Point {
	return image.Pt(
		int(math.Round(CanvasWidth*t.Scale)),
		int(math.Round(CanvasHeight*t.Scale)),
	)
}

// ImageFormat is the raster encoding of a rendered slide.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
)

// RenderFlags are the quality switches of one render.
type RenderFlags struct {
	// BurnOverlays draws the instructor, subtitle and badge overlays into the raster.
	// Interactive previews may leave them to the client.
	BurnOverlays bool
	Format       ImageFormat
	JPEGQuality  int
}

// FinalFlags is used for deck slides.
func FinalFlags() RenderFlags {
	return RenderFlags{BurnOverlays: true, Format: FormatPNG}
}

// RenderSpec is the complete, self-contained input of one slide render.
type RenderSpec struct {
	Index      int
	Background []byte
	Style      StyleSpec
	Item       ContentItem
	Tier       Tier
	Flags      RenderFlags
}

// RenderedSlide is the output of one render job. Failed slides carry a fallback image.
type RenderedSlide struct {
	Index  int
	Number int
	Image  []byte
	Failed bool
	Err    error
}
