// Package deck packages rendered slides into a PowerPoint (PPTX) file.
// Every slide is one full-bleed picture on a blank 16:9 layout.
package deck

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"lekhaslides/internal/pkg/errors"
	"lekhaslides/internal/slides"
)

// Slide size in EMU: 13.333in x 7.5in.
const (
	SlideWidthEMU  = 12192000
	SlideHeightEMU = 6858000
)

// ContentType is the MIME type of an assembled deck.
const ContentType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

// Options are the document properties written into the package.
type Options struct {
	Title   string
	Creator string
	Created time.Time
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = "Slides"
	}
	if o.Creator == "" {
		o.Creator = "lekhaslides"
	}
	if o.Created.IsZero() {
		o.Created = time.Now()
	}
	return o
}

// Assemble returns the PPTX bytes for rendered.
func Assemble(rendered []slides.RenderedSlide, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, rendered, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write sorts rendered by original index and streams the package to w.
// The indices must be exactly 0..len-1 and every slide must carry an image.
func Write(w io.Writer, rendered []slides.RenderedSlide, opts Options) error {
	ordered, err := order(rendered)
	if err != nil {
		return err
	}
	media, err := mediaFor(ordered)
	if err != nil {
		return err
	}

	p := &pkg{slides: ordered, media: media, opts: opts.withDefaults()}
	if err := p.write(w); err != nil {
		return errors.Assembly(err, "failed to write presentation package")
	}
	return nil
}

func order(rendered []slides.RenderedSlide) ([]slides.RenderedSlide, error) {
	if len(rendered) == 0 {
		return nil, errors.Assembly(nil, "no slides to assemble")
	}
	ordered := make([]slides.RenderedSlide, len(rendered))
	copy(ordered, rendered)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	for i, s := range ordered {
		if s.Index != i {
			return nil, errors.Assembly(nil, fmt.Sprintf("slide index %d missing or duplicated", i)).
				WithField("got", s.Index)
		}
		if len(s.Image) == 0 {
			return nil, errors.Assembly(nil, fmt.Sprintf("slide %d has no image", i)).WithField("index", i)
		}
	}
	return ordered, nil
}

type mediaPart struct {
	ext         string
	contentType string
}

func mediaFor(ordered []slides.RenderedSlide) ([]mediaPart, error) {
	out := make([]mediaPart, len(ordered))
	for i, s := range ordered {
		switch ct := http.DetectContentType(s.Image); ct {
		case "image/png":
			out[i] = mediaPart{ext: "png", contentType: ct}
		case "image/jpeg":
			out[i] = mediaPart{ext: "jpeg", contentType: ct}
		default:
			return nil, errors.Assembly(nil, fmt.Sprintf("slide %d image has unsupported type %s", i, ct)).WithField("index", i)
		}
	}
	return out, nil
}

type pkg struct {
	slides []slides.RenderedSlide
	media  []mediaPart
	opts   Options
}

func (p *pkg) write(w io.Writer) error {
	zw := zip.NewWriter(w)

	steps := []func(*zip.Writer) error{
		p.writeContentTypes,
		p.writeRootRels,
		p.writeAppProperties,
		p.writeCoreProperties,
		p.writePresentation,
		p.writePresentationRels,
		p.writeMaster,
		p.writeTheme,
	}
	for _, step := range steps {
		if err := step(zw); err != nil {
			return err
		}
	}
	for i := range p.slides {
		if err := p.writeSlide(zw, i+1); err != nil {
			return err
		}
	}
	if err := p.writeMedia(zw); err != nil {
		return err
	}
	return zw.Close()
}

func (p *pkg) writeMedia(zw *zip.Writer) error {
	for i, s := range p.slides {
		// Images are already compressed.
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:   fmt.Sprintf("ppt/media/image%d.%s", i+1, p.media[i].ext),
			Method: zip.Store,
		})
		if err != nil {
			return fmt.Errorf("create media %d: %w", i+1, err)
		}
		if _, err := fw.Write(s.Image); err != nil {
			return fmt.Errorf("write media %d: %w", i+1, err)
		}
	}
	return nil
}
