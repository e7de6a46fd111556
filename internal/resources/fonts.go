package resources

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/gofont/gosmallcaps"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"

	"lekhaslides/internal/slides"
)

// maxFontScanDepth limits recursion when scanning font directories.
const maxFontScanDepth = 3

// maxFontFileSize skips font files larger than this.
const maxFontFileSize = 20 << 20

// embeddedFonts back every family when no font directory provides one.
var embeddedFonts = map[slides.FontFamily][]byte{
	slides.FontChalk:   gomedium.TTF,
	slides.FontCasual:  goregular.TTF,
	slides.FontPlayful: goitalic.TTF,
	slides.FontNatural: gosmallcaps.TTF,
}

// familyAliases are the file or family names a font directory may use for each family.
var familyAliases = map[slides.FontFamily][]string{
	slides.FontChalk:   {"chalk", "chalkboard", "chalkboard se", "chalkduster"},
	slides.FontCasual:  {"casual", "comic neue", "comic sans ms"},
	slides.FontPlayful: {"playful", "baloo 2", "fredoka"},
	slides.FontNatural: {"natural", "nunito", "patrick hand"},
}

// FontLibrary resolves a family to a parsed font. It is process-wide and safe for concurrent use;
// parsed fonts are read-only and shared by every Cache.
type FontLibrary struct {
	dirs []string

	mu      sync.RWMutex
	scanned bool
	found   map[string]*opentype.Font // lowercase file or family name -> font
	parsed  map[slides.FontFamily]*opentype.Font
}

// NewFontLibrary creates a library that prefers fonts found under dirs
// (an OS path list, e.g. "/fonts:/usr/share/fonts/truetype") over the embedded Go fonts.
func NewFontLibrary(dirs string) *FontLibrary {
	var list []string
	for _, d := range filepath.SplitList(dirs) {
		if d = strings.TrimSpace(d); d != "" {
			list = append(list, d)
		}
	}
	return &FontLibrary{
		dirs:   list,
		found:  make(map[string]*opentype.Font),
		parsed: make(map[slides.FontFamily]*opentype.Font),
	}
}

// Font returns the parsed font for family.
func (l *FontLibrary) Font(family slides.FontFamily) (*opentype.Font, error) {
	l.ensureScanned()

	l.mu.RLock()
	f, ok := l.parsed[family]
	l.mu.RUnlock()
	if ok {
		return f, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := l.parsed[family]; ok {
		return f, nil
	}
	for _, alias := range familyAliases[family] {
		if f, ok := l.found[alias]; ok {
			l.parsed[family] = f
			return f, nil
		}
	}
	data, ok := embeddedFonts[family]
	if !ok {
		return nil, fmt.Errorf("unknown font family %q", family)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse embedded font for %s: %w", family, err)
	}
	l.parsed[family] = f
	return f, nil
}

// Source reports where family is loaded from: "dir" or "embedded".
func (l *FontLibrary) Source(family slides.FontFamily) string {
	l.ensureScanned()
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, alias := range familyAliases[family] {
		if _, ok := l.found[alias]; ok {
			return "dir"
		}
	}
	return "embedded"
}

func (l *FontLibrary) ensureScanned() {
	l.mu.RLock()
	scanned := l.scanned
	l.mu.RUnlock()
	if scanned {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.scanned {
		return
	}
	l.scanned = true
	for _, dir := range l.dirs {
		l.scanDir(dir, 0)
	}
}

func (l *FontLibrary) scanDir(dir string, depth int) {
	if depth > maxFontScanDepth {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			l.scanDir(filepath.Join(dir, entry.Name()), depth+1)
			continue
		}
		lower := strings.ToLower(entry.Name())
		ext := filepath.Ext(lower)
		isCollection := ext == ".ttc" || ext == ".otc"
		if !isCollection && ext != ".ttf" && ext != ".otf" {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() > maxFontFileSize {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		base := strings.TrimSuffix(lower, ext)
		if isCollection {
			l.loadCollection(data, base)
		} else if f, err := opentype.Parse(data); err == nil {
			l.register(base, f)
		}
	}
}

func (l *FontLibrary) loadCollection(data []byte, base string) {
	coll, err := opentype.ParseCollection(data)
	if err != nil {
		return
	}
	for i := 0; i < coll.NumFonts(); i++ {
		f, err := coll.Font(i)
		if err != nil {
			continue
		}
		if i == 0 {
			l.register(base, f)
			continue
		}
		l.register("", f)
	}
}

// register records f under its file base name and its internal family name.
// The first font registered under a name wins, so regular weights listed first in a
// collection are not replaced by their bold siblings.
func (l *FontLibrary) register(base string, f *opentype.Font) {
	add := func(name string) {
		if name == "" {
			return
		}
		if _, taken := l.found[name]; !taken {
			l.found[name] = f
		}
	}
	add(base)
	if family, err := f.Name(nil, sfnt.NameIDFamily); err == nil {
		add(strings.ToLower(family))
	}
}
