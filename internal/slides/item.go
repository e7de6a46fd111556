// Package slides holds the data model shared by layout, rendering and assembly.
package slides

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Canonical canvas. Every position in a StyleSpec is expressed in this space.
const (
	CanvasWidth  = 1920
	CanvasHeight = 1080
)

// Pointer is one bullet of an answer. On the wire it is a [label, detail] pair.
type Pointer struct {
	Label  string
	Detail string
}

func (p Pointer) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.Label, p.Detail})
}

func (p *Pointer) UnmarshalJSON(b []byte) error {
	var pair []string
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("pointer must be a [label, detail] array: %w", err)
	}
	switch len(pair) {
	case 0:
		*p = Pointer{}
	case 1:
		*p = Pointer{Detail: pair[0]}
	default:
		*p = Pointer{Label: pair[0], Detail: pair[1]}
	}
	return nil
}

// ContentItem is one slide's worth of content. Items are identified by their position in a batch.
type ContentItem struct {
	Number   int            `json:"number"`
	Text     string         `json:"question"`
	Pointers []Pointer      `json:"pointers,omitempty"`
	Image    ImageData      `json:"image,omitempty"`
	Override *StyleOverride `json:"config,omitempty"`
}

// UnmarshalJSON also accepts "text" for the question and "config_override" for the override.
func (c *ContentItem) UnmarshalJSON(b []byte) error {
	type plain ContentItem
	var aux struct {
		plain
		AltText     *string        `json:"text"`
		AltOverride *StyleOverride `json:"config_override"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*c = ContentItem(aux.plain)
	if c.Text == "" && aux.AltText != nil {
		c.Text = *aux.AltText
	}
	if c.Override == nil && aux.AltOverride != nil {
		c.Override = aux.AltOverride
	}
	return nil
}

// ImageData is raw image bytes. On the wire it is base64, optionally as a data URL.
type ImageData []byte

func (d ImageData) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(d))
}

func (d *ImageData) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("image must be a base64 string: %w", err)
	}
	if i := strings.Index(s, ";base64,"); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+len(";base64,"):]
	}
	if s == "" {
		*d = nil
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("image is not valid base64: %w", err)
	}
	*d = raw
	return nil
}
