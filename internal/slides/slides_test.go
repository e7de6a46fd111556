package slides

import (
	"encoding/base64"
	"encoding/json"
	"image/color"
	"testing"
)

func ptr[T any](v T) *T { return &v }

func TestContentItemJSON(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	raw := `{
		"number": 3,
		"question": "Define **Strategic** Cost Management",
		"pointers": [["Definition:", "SCM is the proactive use"], ["Only detail"]],
		"image": "data:image/png;base64,` + base64.StdEncoding.EncodeToString(png) + `",
		"config": {"font_size_body": 32, "render_badge": false}
	}`

	var item ContentItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if item.Number != 3 || item.Text != "Define **Strategic** Cost Management" {
		t.Errorf("unexpected item %+v", item)
	}
	if len(item.Pointers) != 2 || item.Pointers[0].Label != "Definition:" || item.Pointers[1].Detail != "Only detail" {
		t.Errorf("unexpected pointers %+v", item.Pointers)
	}
	if string(item.Image) != string(png) {
		t.Errorf("data URL not decoded: %v", item.Image)
	}
	if item.Override == nil || *item.Override.BodySize != 32 || *item.Override.RenderBadge {
		t.Errorf("unexpected override %+v", item.Override)
	}
}

func TestContentItemAliases(t *testing.T) {
	var item ContentItem
	if err := json.Unmarshal([]byte(`{"text":"What is ROI?","config_override":{"pos_x":12}}`), &item); err != nil {
		t.Fatal(err)
	}
	if item.Text != "What is ROI?" || item.Override == nil || *item.Override.PosX != 12 {
		t.Errorf("aliases not honoured: %+v", item)
	}
}

func TestPointerRoundTripShape(t *testing.T) {
	b, err := json.Marshal(Pointer{Label: "A:", Detail: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `["A:","b"]` {
		t.Errorf("unexpected pointer encoding %s", b)
	}
	var p Pointer
	if err := json.Unmarshal([]byte(`{"label":"x"}`), &p); err == nil {
		t.Error("expected object form to be rejected")
	}
}

func TestImageDataRejectsGarbage(t *testing.T) {
	var d ImageData
	if err := json.Unmarshal([]byte(`"%%%not-base64"`), &d); err == nil {
		t.Error("expected invalid base64 to fail")
	}
}

func TestResolveOverridePrecedence(t *testing.T) {
	global := &StyleOverride{
		FontFamily:     ptr("casual"),
		BodySize:       ptr(30.0),
		InstructorName: ptr("Prof. Lekha"),
	}
	item := &StyleOverride{
		BodySize:    ptr(36.0),
		RenderBadge: ptr(false),
	}

	got := Resolve(global, item)

	if got.FontFamily != FontCasual {
		t.Errorf("expected Casual, got %s", got.FontFamily)
	}
	if got.BodySize != 36 {
		t.Errorf("item override must win, got %v", got.BodySize)
	}
	if got.InstructorName != "Prof. Lekha" {
		t.Errorf("global value lost: %q", got.InstructorName)
	}
	if got.Badge.Visible {
		t.Error("badge should be hidden by item override")
	}
	if got.HeadingSize != DefaultStyle().HeadingSize {
		t.Errorf("unset field should keep default, got %v", got.HeadingSize)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		o     StyleOverride
		check func(t *testing.T, s StyleSpec)
	}{
		{
			name: "content scale clamped high",
			o:    StyleOverride{ContentScale: ptr(9.0)},
			check: func(t *testing.T, s StyleSpec) {
				if s.ContentScale != MaxContentScale {
					t.Errorf("got %v", s.ContentScale)
				}
			},
		},
		{
			name: "content scale clamped low",
			o:    StyleOverride{ContentScale: ptr(0.1)},
			check: func(t *testing.T, s StyleSpec) {
				if s.ContentScale != MinContentScale {
					t.Errorf("got %v", s.ContentScale)
				}
			},
		},
		{
			name: "unknown family and region fall back",
			o:    StyleOverride{FontFamily: ptr("Comic"), Region: ptr("top-left")},
			check: func(t *testing.T, s StyleSpec) {
				if s.FontFamily != FontChalk || s.Region != RegionFull {
					t.Errorf("got %s / %s", s.FontFamily, s.Region)
				}
			},
		},
		{
			name: "region is case-insensitive",
			o:    StyleOverride{Region: ptr(" Right-Third ")},
			check: func(t *testing.T, s StyleSpec) {
				if s.Region != RegionRightThird {
					t.Errorf("got %s", s.Region)
				}
			},
		},
		{
			name: "invalid color falls back",
			o:    StyleOverride{QuestionColor: ptr("orange"), BodyColor: ptr("#abc")},
			check: func(t *testing.T, s StyleSpec) {
				if s.QuestionColor != DefaultStyle().QuestionColor {
					t.Errorf("got %s", s.QuestionColor)
				}
				if s.BodyColor != "#ABC" {
					t.Errorf("got %s", s.BodyColor)
				}
			},
		},
		{
			name: "tiny and negative sizes",
			o:    StyleOverride{BodySize: ptr(2.0), HeadingSize: ptr(-4.0)},
			check: func(t *testing.T, s StyleSpec) {
				if s.BodySize != MinFontSize || s.HeadingSize != DefaultStyle().HeadingSize {
					t.Errorf("got body=%v heading=%v", s.BodySize, s.HeadingSize)
				}
			},
		},
		{
			name: "negative pointer spacing is kept for layout to floor",
			o:    StyleOverride{PointerSpacing: ptr(-30.0)},
			check: func(t *testing.T, s StyleSpec) {
				if s.PointerSpacing != -30 {
					t.Errorf("got %v", s.PointerSpacing)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Resolve(&tt.o, nil)
			tt.check(t, s)
			if again := s.Normalize(); again != s {
				t.Errorf("Normalize is not idempotent:\n%+v\n%+v", s, again)
			}
		})
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
		ok   bool
	}{
		{"#FFB450", color.NRGBA{255, 180, 80, 255}, true},
		{"ffb450", color.NRGBA{255, 180, 80, 255}, true},
		{"#fff", color.NRGBA{255, 255, 255, 255}, true},
		{"#00000080", color.NRGBA{0, 0, 0, 128}, true},
		{"#12345", color.NRGBA{}, false},
		{"#GGGGGG", color.NRGBA{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHexColor(tt.in)
			if (err == nil) != tt.ok {
				t.Fatalf("err = %v, want ok=%v", err, tt.ok)
			}
			if tt.ok && got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTierSize(t *testing.T) {
	if got := FinalTier().Size(); got.X != 1920 || got.Y != 1080 {
		t.Errorf("final tier size %v", got)
	}
	if got := PreviewTier(0.5).Size(); got.X != 960 || got.Y != 540 {
		t.Errorf("preview tier size %v", got)
	}
	if got := PreviewTier(0).Scale; got != 0.5 {
		t.Errorf("invalid preview scale should default to 0.5, got %v", got)
	}
}
