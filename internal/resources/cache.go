// Package resources provides the request-scoped resource cache used while rendering a batch:
// font handles keyed by (family, size) and background crops keyed by (fingerprint, size).
package resources

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/singleflight"

	"lekhaslides/internal/pkg/logger"
	"lekhaslides/internal/slides"
)

// CropKey identifies a background crop.
type CropKey struct {
	Fingerprint string
	Width       int
	Height      int
}

func (k CropKey) String() string {
	return fmt.Sprintf("crop:%s:%dx%d", k.Fingerprint, k.Width, k.Height)
}

// Stats counts the expensive operations a Cache has performed.
type Stats struct {
	FontLoads     int64
	SourceDecodes int64
	CropBuilds    int64
	StoreHits     int64
}

// Cache is shared by every worker rendering one batch and discarded with it.
// Each key is computed at most once; concurrent callers for a key wait for the
// in-flight computation and receive its result.
type Cache struct {
	fonts *FontLibrary
	store CropStore
	log   *logger.Logger

	group singleflight.Group

	mu      sync.RWMutex
	faces   map[FontKey]*FontHandle
	sources map[string]image.Image
	crops   map[CropKey]image.Image

	fontLoads     atomic.Int64
	sourceDecodes atomic.Int64
	cropBuilds    atomic.Int64
	storeHits     atomic.Int64
}

// NewCache creates an empty cache. store may be nil.
func NewCache(fonts *FontLibrary, store CropStore, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.Discard()
	}
	return &Cache{
		fonts:   fonts,
		store:   store,
		log:     log.WithComponent("resource-cache"),
		faces:   make(map[FontKey]*FontHandle),
		sources: make(map[string]image.Image),
		crops:   make(map[CropKey]image.Image),
	}
}

// GetOrCreateFont returns the handle for family at px pixels.
func (c *Cache) GetOrCreateFont(family slides.FontFamily, px float64) (*FontHandle, error) {
	key := FontKey{Family: family, Px: NormalizePx(px)}
	if h, ok := c.lookupFont(key); ok {
		return h, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		if h, ok := c.lookupFont(key); ok {
			return h, nil
		}
		f, err := c.fonts.Font(family)
		if err != nil {
			return nil, err
		}
		h, err := newFontHandle(f, key)
		if err != nil {
			return nil, err
		}
		c.fontLoads.Add(1)

		c.mu.Lock()
		c.faces[key] = h
		c.mu.Unlock()
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*FontHandle), nil
}

// GetOrCreateBackground returns data decoded and cover-cropped to size.
// The returned image is shared and must not be modified.
func (c *Cache) GetOrCreateBackground(ctx context.Context, data []byte, size image.Point) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := CropKey{Fingerprint: Fingerprint(data), Width: size.X, Height: size.Y}
	if img, ok := c.lookupCrop(key); ok {
		return img, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		if img, ok := c.lookupCrop(key); ok {
			return img, nil
		}
		if img, ok := c.fromStore(ctx, key); ok {
			c.storeCrop(key, img)
			return img, nil
		}

		src, err := c.source(key.Fingerprint, data)
		if err != nil {
			return nil, err
		}
		crop := imaging.Fill(src, size.X, size.Y, imaging.Center, imaging.Lanczos)
		c.cropBuilds.Add(1)
		c.storeCrop(key, crop)

		if c.store != nil {
			if err := c.store.Put(ctx, key, crop); err != nil {
				c.log.Warn("crop store write failed", "key", key.String(), "error", err.Error())
			}
		}
		return crop, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(image.Image), nil
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		FontLoads:     c.fontLoads.Load(),
		SourceDecodes: c.sourceDecodes.Load(),
		CropBuilds:    c.cropBuilds.Load(),
		StoreHits:     c.storeHits.Load(),
	}
}

// source decodes the original background once per fingerprint, for all target sizes.
func (c *Cache) source(fp string, data []byte) (image.Image, error) {
	c.mu.RLock()
	img, ok := c.sources[fp]
	c.mu.RUnlock()
	if ok {
		return img, nil
	}

	v, err, _ := c.group.Do("src:"+fp, func() (any, error) {
		c.mu.RLock()
		img, ok := c.sources[fp]
		c.mu.RUnlock()
		if ok {
			return img, nil
		}
		img, _, err := DecodeImage(data)
		if err != nil {
			return nil, err
		}
		c.sourceDecodes.Add(1)
		c.mu.Lock()
		c.sources[fp] = img
		c.mu.Unlock()
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(image.Image), nil
}

func (c *Cache) fromStore(ctx context.Context, key CropKey) (image.Image, bool) {
	if c.store == nil {
		return nil, false
	}
	img, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn("crop store read failed", "key", key.String(), "error", err.Error())
		return nil, false
	}
	if !ok || img.Bounds().Dx() != key.Width || img.Bounds().Dy() != key.Height {
		return nil, false
	}
	c.storeHits.Add(1)
	return img, true
}

func (c *Cache) lookupFont(key FontKey) (*FontHandle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.faces[key]
	return h, ok
}

func (c *Cache) lookupCrop(key CropKey) (image.Image, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	img, ok := c.crops[key]
	return img, ok
}

func (c *Cache) storeCrop(key CropKey, img image.Image) {
	c.mu.Lock()
	c.crops[key] = img
	c.mu.Unlock()
}
