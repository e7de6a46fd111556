// Package layout computes where everything on a slide goes.
// Layout runs once in canonical 1920x1080 space and the result is scaled to the
// requested tier, so every tier wraps text at the same words.
package layout

import (
	"fmt"
	"image/color"
	"math"
	"strings"
	"unicode/utf8"

	"lekhaslides/internal/resources"
	"lekhaslides/internal/slides"
)

// Canonical geometry.
const (
	MarginLeft   = 80
	MarginRight  = 80
	MarginTop    = 60
	MarginBottom = 60
	// ContentTop is where the question starts, below the header overlays.
	ContentTop = MarginTop + 200

	questionLineFactor = 1.25      // question line height per px of heading size
	bodyLineFactor     = 50.0 / 28 // bullet line spacing per px of body size
	labelSizeDelta     = 2         // labels are drawn slightly larger than body text
	answerGap          = 40
	bulletGap          = 60
	bulletIndent       = 40
	labelGap           = 10
	minContentWidth    = 240
	minDetailWidth     = 160
	minInlineImage     = 120
	imageGap           = 10

	badgeBaseSize   = 24
	badgeMinWidth   = 350
	badgeHeight     = 70
	badgePadding    = 24
	badgeRadius     = 10
	badgeStroke     = 3
	watermarkSize   = 20
	watermarkInsetX = 40
	watermarkInsetY = 30
)

// AnswerLabel introduces the bullet list.
const AnswerLabel = "Answer –"

// Bullet marks each pointer.
const Bullet = "•"

// Face is what layout needs from a font at one size.
type Face interface {
	Measure(s string) float64
	Ascent() float64
	LineHeight() float64
}

// Fonts resolves faces. *resources.Cache is adapted by FromCache.
type Fonts interface {
	Face(family slides.FontFamily, px float64) (Face, error)
}

// FontsFunc adapts a function to Fonts.
type FontsFunc func(family slides.FontFamily, px float64) (Face, error)

func (f FontsFunc) Face(family slides.FontFamily, px float64) (Face, error) { return f(family, px) }

// FromCache measures through the batch's resource cache.
func FromCache(c *resources.Cache) Fonts {
	return FontsFunc(func(family slides.FontFamily, px float64) (Face, error) {
		h, err := c.GetOrCreateFont(family, px)
		if err != nil {
			return nil, err
		}
		return h, nil
	})
}

// RegionBox returns the canvas area of r.
func RegionBox(r slides.Region) Box {
	const w, h = float64(slides.CanvasWidth), float64(slides.CanvasHeight)
	switch r {
	case slides.RegionLeftHalf:
		return Box{X: 0, Y: 0, W: w / 2, H: h}
	case slides.RegionRightHalf:
		return Box{X: w / 2, Y: 0, W: w / 2, H: h}
	case slides.RegionLeftThird:
		return Box{X: 0, Y: 0, W: w / 3, H: h}
	case slides.RegionCenterThird:
		return Box{X: w / 3, Y: 0, W: w / 3, H: h}
	case slides.RegionRightThird:
		return Box{X: 2 * w / 3, Y: 0, W: w / 3, H: h}
	default:
		return Box{X: 0, Y: 0, W: w, H: h}
	}
}

// Compute lays out item under style and scales the result to tier.
// style must already be normalized.
func Compute(item slides.ContentItem, style slides.StyleSpec, tier slides.Tier, fonts Fonts) (*DrawPlan, error) {
	l := &layouter{style: style, fonts: fonts}
	plan, err := l.canonical(item)
	if err != nil {
		return nil, err
	}
	return plan.Scaled(tier.Scale), nil
}

type layouter struct {
	style slides.StyleSpec
	fonts Fonts
}

func (l *layouter) face(px float64) (Face, FontRef, error) {
	ref := FontRef{Family: l.style.FontFamily, Size: resources.NormalizePx(px)}
	f, err := l.fonts.Face(ref.Family, ref.Size)
	if err != nil {
		return nil, ref, fmt.Errorf("font %s@%.1f: %w", ref.Family, ref.Size, err)
	}
	return f, ref, nil
}

func (l *layouter) canonical(item slides.ContentItem) (*DrawPlan, error) {
	s := l.style
	zoom := s.ContentScale

	region := RegionBox(s.Region)
	originX := region.X + MarginLeft + s.PosX
	originY := region.Y + ContentTop + s.PosY
	right := math.Min(originX+(region.W-MarginLeft-MarginRight)*zoom, slides.CanvasWidth-MarginRight)
	width := math.Max(right-originX, minContentWidth)
	right = originX + width
	bottom := float64(slides.CanvasHeight - MarginBottom)

	plan := &DrawPlan{
		Number:  item.Number,
		Scale:   1,
		Canvas:  slides.FinalTier().Size(),
		Content: Box{X: originX, Y: originY, W: width, H: math.Max(bottom-originY, 0)},
	}

	heading, headingRef, err := l.face(s.HeadingSize * zoom)
	if err != nil {
		return nil, err
	}
	body, bodyRef, err := l.face(s.BodySize * zoom)
	if err != nil {
		return nil, err
	}
	label, labelRef, err := l.face((s.BodySize + labelSizeDelta) * zoom)
	if err != nil {
		return nil, err
	}

	questionColor := slides.MustColor(s.QuestionColor)
	bodyColor := slides.MustColor(s.BodyColor)
	labelColor := slides.MustColor(s.LabelColor)

	y := originY
	question := fmt.Sprintf("Ques %d => %s", item.Number, Strip(item.Text))
	questionLine := math.Max(s.HeadingSize*zoom*questionLineFactor, heading.LineHeight())
	for _, line := range wrap(heading, question, width) {
		plan.Texts = append(plan.Texts, TextRun{Text: line, X: originX, Y: y + heading.Ascent(), Font: headingRef, Color: questionColor})
		y += questionLine
	}

	if len(item.Pointers) > 0 {
		y += answerGap * zoom
		plan.Texts = append(plan.Texts, TextRun{Text: AnswerLabel, X: originX, Y: y + body.Ascent(), Font: bodyRef, Color: bodyColor})
		y += bulletGap * zoom

		// Spacing may shrink below the default but never so far that lines overlap.
		spacing := math.Max(s.BodySize*zoom*bodyLineFactor+s.PointerSpacing*zoom, body.LineHeight())

		for _, p := range item.Pointers {
			plan.Texts = append(plan.Texts, TextRun{Text: Bullet, X: originX, Y: y + body.Ascent(), Font: bodyRef, Color: bodyColor})

			labelX := originX + bulletIndent*zoom
			detailX := labelX
			lineY := y
			if text := Strip(p.Label); text != "" {
				plan.Texts = append(plan.Texts, TextRun{Text: text, X: labelX, Y: y + label.Ascent(), Font: labelRef, Color: labelColor})
				detailX = labelX + label.Measure(text) + labelGap*zoom
				if right-detailX < minDetailWidth*zoom {
					// Label too wide to share its line: the detail starts below it.
					detailX = labelX
					lineY += spacing
				}
			}

			lines := wrap(body, Strip(p.Detail), right-detailX)
			for j, line := range lines {
				plan.Texts = append(plan.Texts, TextRun{Text: line, X: detailX, Y: lineY + float64(j)*spacing + body.Ascent(), Font: bodyRef, Color: bodyColor})
			}
			y = lineY + float64(len(lines)+1)*spacing
			if len(lines) == 0 {
				y = lineY + spacing
			}
		}
	}

	if len(item.Image) > 0 {
		top := y + imageGap*zoom
		if bottom-top >= minInlineImage*zoom {
			plan.Image = &Box{X: originX, Y: top, W: width, H: bottom - top}
		} else {
			// No room below the text: use the right third of the content area.
			w := width / 3
			plan.Image = &Box{X: right - w, Y: originY, W: w, H: math.Max(bottom-originY, minInlineImage)}
		}
	}

	overlays, err := l.overlays()
	if err != nil {
		return nil, err
	}
	plan.Overlays = overlays

	if s.WatermarkText != "" {
		wm, ref, err := l.face(watermarkSize)
		if err != nil {
			return nil, err
		}
		text := Strip(s.WatermarkText)
		plan.Watermark = &TextRun{
			Text:  text,
			X:     slides.CanvasWidth - watermarkInsetX - wm.Measure(text),
			Y:     slides.CanvasHeight - watermarkInsetY,
			Font:  ref,
			Color: color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0x66},
		}
	}
	return plan, nil
}

func (l *layouter) overlays() ([]Overlay, error) {
	s := l.style
	var out []Overlay

	plain := []struct {
		kind OverlayKind
		el   slides.ElementStyle
		text string
	}{
		{OverlayInstructor, s.Instructor, s.InstructorName},
		{OverlaySubtitle, s.Subtitle, s.SubtitleText},
	}
	for _, p := range plain {
		text := Strip(p.text)
		if !p.el.Visible || text == "" {
			continue
		}
		f, ref, err := l.face(p.el.Size)
		if err != nil {
			return nil, err
		}
		out = append(out, Overlay{
			Kind:     p.kind,
			Box:      Box{X: p.el.X, Y: p.el.Y, W: f.Measure(text), H: f.LineHeight()},
			Rotation: p.el.Rotation,
			Text:     TextRun{Text: text, X: p.el.X, Y: p.el.Y + f.Ascent(), Font: ref, Color: slides.MustColor(p.el.Color)},
		})
	}

	if text := Strip(s.BadgeText); s.Badge.Visible && text != "" {
		f, ref, err := l.face(s.Badge.Size)
		if err != nil {
			return nil, err
		}
		k := s.Badge.Size / badgeBaseSize
		tw := f.Measure(text)
		w := math.Max(badgeMinWidth*k, tw+2*badgePadding*k)
		h := math.Max(badgeHeight*k, f.LineHeight()+badgePadding*k)
		fill := slides.MustColor(s.BadgeBackground)
		stroke := slides.MustColor(s.BadgeOutline)
		out = append(out, Overlay{
			Kind:     OverlayBadge,
			Box:      Box{X: s.Badge.X, Y: s.Badge.Y, W: w, H: h},
			Rotation: s.Badge.Rotation,
			Text: TextRun{
				Text:  text,
				X:     s.Badge.X + (w-tw)/2,
				Y:     s.Badge.Y + (h-f.LineHeight())/2 + f.Ascent(),
				Font:  ref,
				Color: slides.MustColor(s.Badge.Color),
			},
			Fill:        &fill,
			Stroke:      &stroke,
			StrokeWidth: badgeStroke * k,
			Radius:      badgeRadius * k,
		})
	}
	return out, nil
}

// wrap greedily breaks text into lines no wider than width.
// A single word wider than width is split between runes.
func wrap(f Face, text string, width float64) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	current := ""
	for _, word := range words {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if f.Measure(candidate) <= width {
			current = candidate
			continue
		}
		if current != "" {
			lines = append(lines, current)
			current = ""
		}
		for f.Measure(word) > width && utf8.RuneCountInString(word) > 1 {
			head, tail := splitToWidth(f, word, width)
			lines = append(lines, head)
			word = tail
		}
		current = word
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// splitToWidth returns the longest rune prefix of word fitting width (at least one rune) and the rest.
func splitToWidth(f Face, word string, width float64) (string, string) {
	runes := []rune(word)
	n := 1
	for n < len(runes) && f.Measure(string(runes[:n+1])) <= width {
		n++
	}
	return string(runes[:n]), string(runes[n:])
}
