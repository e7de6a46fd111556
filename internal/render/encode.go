package render

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"

	"lekhaslides/internal/slides"
)

const defaultJPEGQuality = 85

// Encode serializes img in the format flags ask for. PNG is the default.
func Encode(img image.Image, flags slides.RenderFlags) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch flags.Format {
	case slides.FormatJPEG:
		q := flags.JPEGQuality
		if q <= 0 || q > 100 {
			q = defaultJPEGQuality
		}
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q))
	default:
		err = imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.DefaultCompression))
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", formatName(flags.Format), err)
	}
	return buf.Bytes(), nil
}

// ContentType returns the MIME type of an encoded image.
func ContentType(f slides.ImageFormat) string {
	if f == slides.FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

func formatName(f slides.ImageFormat) string {
	if f == "" {
		return string(slides.FormatPNG)
	}
	return string(f)
}
