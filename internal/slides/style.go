package slides

import (
	"encoding/hex"
	"fmt"
	"image/color"
	"math"
	"strings"
)

// FontFamily names one of the supported slide typefaces.
type FontFamily string

const (
	FontChalk   FontFamily = "Chalk"
	FontCasual  FontFamily = "Casual"
	FontPlayful FontFamily = "Playful"
	FontNatural FontFamily = "Natural"
)

// FontFamilies lists every supported family.
var FontFamilies = []FontFamily{FontChalk, FontCasual, FontPlayful, FontNatural}

// ParseFontFamily matches case-insensitively; ok is false for unknown names.
func ParseFontFamily(s string) (FontFamily, bool) {
	for _, f := range FontFamilies {
		if strings.EqualFold(string(f), strings.TrimSpace(s)) {
			return f, true
		}
	}
	return "", false
}

// Region selects the part of the canvas the content block is laid out in.
type Region string

const (
	RegionFull        Region = "full"
	RegionLeftHalf    Region = "left-half"
	RegionRightHalf   Region = "right-half"
	RegionLeftThird   Region = "left-third"
	RegionCenterThird Region = "center-third"
	RegionRightThird  Region = "right-third"
)

func (r Region) valid() bool {
	switch r {
	case RegionFull, RegionLeftHalf, RegionRightHalf, RegionLeftThird, RegionCenterThird, RegionRightThird:
		return true
	}
	return false
}

// Limits applied by Normalize.
const (
	MinContentScale = 0.5
	MaxContentScale = 2.0
	MinFontSize     = 8
)

// ElementStyle places one decorative overlay (instructor label, subtitle, badge).
type ElementStyle struct {
	X        float64
	Y        float64
	Rotation float64 // degrees, counter-clockwise
	Size     float64 // font size in px
	Color    string  // #RRGGBB
	Visible  bool
}

// StyleSpec is a fully resolved style. Every field is concrete.
type StyleSpec struct {
	FontFamily  FontFamily
	HeadingSize float64
	BodySize    float64

	QuestionColor string
	LabelColor    string
	BodyColor     string

	InstructorName string
	SubtitleText   string
	BadgeText      string

	Instructor      ElementStyle
	Subtitle        ElementStyle
	Badge           ElementStyle
	BadgeBackground string
	BadgeOutline    string

	// PosX and PosY offset the content block from its default origin.
	PosX           float64
	PosY           float64
	PointerSpacing float64
	Region         Region
	ContentScale   float64
	WatermarkText  string
}

// DefaultStyle reproduces the classic chalkboard slide.
func DefaultStyle() StyleSpec {
	return StyleSpec{
		FontFamily:    FontChalk,
		HeadingSize:   48,
		BodySize:      28,
		QuestionColor: "#FFB450",
		LabelColor:    "#FFB450",
		BodyColor:     "#F0F5FA",
		Instructor: ElementStyle{
			X: 80, Y: 60, Size: 60, Color: "#F0C83C", Visible: true,
		},
		Subtitle: ElementStyle{
			X: 80, Y: 130, Size: 28, Color: "#64DCB4", Visible: true,
		},
		Badge: ElementStyle{
			X: 1490, Y: 60, Size: 24, Color: "#1E2832", Visible: true,
		},
		BadgeBackground: "#FFB450",
		BadgeOutline:    "#1E2832",
		Region:          RegionFull,
		ContentScale:    1,
	}
}

// StyleOverride is a partial style. Nil fields leave the base value untouched.
// The same shape carries the global configuration and per-item overrides.
type StyleOverride struct {
	FontFamily  *string  `json:"font_family,omitempty"`
	HeadingSize *float64 `json:"font_size_heading,omitempty"`
	BodySize    *float64 `json:"font_size_body,omitempty"`

	QuestionColor *string `json:"question_color,omitempty"`
	LabelColor    *string `json:"label_color,omitempty"`
	BodyColor     *string `json:"body_color,omitempty"`

	InstructorName *string `json:"instructor_name,omitempty"`
	SubtitleText   *string `json:"subtitle,omitempty"`
	BadgeText      *string `json:"badge_text,omitempty"`

	InstructorX        *float64 `json:"instructor_x,omitempty"`
	InstructorY        *float64 `json:"instructor_y,omitempty"`
	InstructorRotation *float64 `json:"instructor_rotation,omitempty"`
	InstructorSize     *float64 `json:"instructor_size,omitempty"`
	InstructorColor    *string  `json:"instructor_color,omitempty"`
	RenderInstructor   *bool    `json:"render_instructor,omitempty"`

	SubtitleX        *float64 `json:"subtitle_x,omitempty"`
	SubtitleY        *float64 `json:"subtitle_y,omitempty"`
	SubtitleRotation *float64 `json:"subtitle_rotation,omitempty"`
	SubtitleSize     *float64 `json:"subtitle_size,omitempty"`
	SubtitleColor    *string  `json:"subtitle_color,omitempty"`
	RenderSubtitle   *bool    `json:"render_subtitle,omitempty"`

	BadgeX          *float64 `json:"badge_x,omitempty"`
	BadgeY          *float64 `json:"badge_y,omitempty"`
	BadgeRotation   *float64 `json:"badge_rotation,omitempty"`
	BadgeSize       *float64 `json:"badge_size,omitempty"`
	BadgeColor      *string  `json:"badge_color,omitempty"`
	BadgeBackground *string  `json:"badge_bg_color,omitempty"`
	BadgeOutline    *string  `json:"badge_border_color,omitempty"`
	RenderBadge     *bool    `json:"render_badge,omitempty"`

	PosX           *float64 `json:"pos_x,omitempty"`
	PosY           *float64 `json:"pos_y,omitempty"`
	PointerSpacing *float64 `json:"pointer_spacing,omitempty"`
	Region         *string  `json:"content_region,omitempty"`
	ContentScale   *float64 `json:"content_scale,omitempty"`
	WatermarkText  *string  `json:"watermark_text,omitempty"`
}

// Apply returns s with every non-nil field of o copied over. A nil o returns s.
func (s StyleSpec) Apply(o *StyleOverride) StyleSpec {
	if o == nil {
		return s
	}
	setString := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setFloat := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setBool := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}

	if o.FontFamily != nil {
		s.FontFamily = FontFamily(*o.FontFamily)
	}
	setFloat(&s.HeadingSize, o.HeadingSize)
	setFloat(&s.BodySize, o.BodySize)

	setString(&s.QuestionColor, o.QuestionColor)
	setString(&s.LabelColor, o.LabelColor)
	setString(&s.BodyColor, o.BodyColor)

	setString(&s.InstructorName, o.InstructorName)
	setString(&s.SubtitleText, o.SubtitleText)
	setString(&s.BadgeText, o.BadgeText)

	setFloat(&s.Instructor.X, o.InstructorX)
	setFloat(&s.Instructor.Y, o.InstructorY)
	setFloat(&s.Instructor.Rotation, o.InstructorRotation)
	setFloat(&s.Instructor.Size, o.InstructorSize)
	setString(&s.Instructor.Color, o.InstructorColor)
	setBool(&s.Instructor.Visible, o.RenderInstructor)

	setFloat(&s.Subtitle.X, o.SubtitleX)
	setFloat(&s.Subtitle.Y, o.SubtitleY)
	setFloat(&s.Subtitle.Rotation, o.SubtitleRotation)
	setFloat(&s.Subtitle.Size, o.SubtitleSize)
	setString(&s.Subtitle.Color, o.SubtitleColor)
	setBool(&s.Subtitle.Visible, o.RenderSubtitle)

	setFloat(&s.Badge.X, o.BadgeX)
	setFloat(&s.Badge.Y, o.BadgeY)
	setFloat(&s.Badge.Rotation, o.BadgeRotation)
	setFloat(&s.Badge.Size, o.BadgeSize)
	setString(&s.Badge.Color, o.BadgeColor)
	setString(&s.BadgeBackground, o.BadgeBackground)
	setString(&s.BadgeOutline, o.BadgeOutline)
	setBool(&s.Badge.Visible, o.RenderBadge)

	setFloat(&s.PosX, o.PosX)
	setFloat(&s.PosY, o.PosY)
	setFloat(&s.PointerSpacing, o.PointerSpacing)
	if o.Region != nil {
		s.Region = Region(strings.ToLower(strings.TrimSpace(*o.Region)))
	}
	setFloat(&s.ContentScale, o.ContentScale)
	setString(&s.WatermarkText, o.WatermarkText)
	return s
}

// Normalize clamps and repairs s so layout never sees an out-of-range value.
// Invalid values fall back to DefaultStyle's.
func (s StyleSpec) Normalize() StyleSpec {
	def := DefaultStyle()

	if f, ok := ParseFontFamily(string(s.FontFamily)); ok {
		s.FontFamily = f
	} else {
		s.FontFamily = def.FontFamily
	}
	s.HeadingSize = sizeOr(s.HeadingSize, def.HeadingSize)
	s.BodySize = sizeOr(s.BodySize, def.BodySize)

	s.QuestionColor = colorOr(s.QuestionColor, def.QuestionColor)
	s.LabelColor = colorOr(s.LabelColor, def.LabelColor)
	s.BodyColor = colorOr(s.BodyColor, def.BodyColor)

	s.Instructor = s.Instructor.normalize(def.Instructor)
	s.Subtitle = s.Subtitle.normalize(def.Subtitle)
	s.Badge = s.Badge.normalize(def.Badge)
	s.BadgeBackground = colorOr(s.BadgeBackground, def.BadgeBackground)
	s.BadgeOutline = colorOr(s.BadgeOutline, def.BadgeOutline)

	s.PosX = finiteOr(s.PosX, 0)
	s.PosY = finiteOr(s.PosY, 0)
	s.PointerSpacing = finiteOr(s.PointerSpacing, 0)
	if !s.Region.valid() {
		s.Region = def.Region
	}
	s.ContentScale = finiteOr(s.ContentScale, 1)
	s.ContentScale = math.Min(MaxContentScale, math.Max(MinContentScale, s.ContentScale))
	return s
}

func (e ElementStyle) normalize(def ElementStyle) ElementStyle {
	e.X = finiteOr(e.X, def.X)
	e.Y = finiteOr(e.Y, def.Y)
	e.Rotation = math.Mod(finiteOr(e.Rotation, 0), 360)
	e.Size = sizeOr(e.Size, def.Size)
	e.Color = colorOr(e.Color, def.Color)
	return e
}

// Resolve merges the global style and an item's override and normalizes the result.
func Resolve(global *StyleOverride, item *StyleOverride) StyleSpec {
	return DefaultStyle().Apply(global).Apply(item).Normalize()
}

func sizeOr(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return def
	}
	return math.Max(MinFontSize, v)
}

func finiteOr(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

func colorOr(v, def string) string {
	if _, err := ParseHexColor(v); err != nil {
		return def
	}
	return strings.ToUpper(v)
}

// ParseHexColor parses #RGB, #RRGGBB or #RRGGBBAA.
func ParseHexColor(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return color.NRGBA{}, fmt.Errorf("parse color %q: want #RGB, #RRGGBB or #RRGGBBAA", s)
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("parse color %q: %w", s, err)
	}
	return color.NRGBA{R: b[0], G: b[1], B: b[2], A: b[3]}, nil
}

// MustColor parses a color already validated by Normalize.
func MustColor(s string) color.NRGBA {
	c, err := ParseHexColor(s)
	if err != nil {
		return color.NRGBA{A: 0xff}
	}
	return c
}
