package resources

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// CropStore is an optional second level for background crops that outlives one batch.
// Keys embed the content fingerprint, so a changed background never hits a stale crop.
type CropStore interface {
	Get(ctx context.Context, key CropKey) (image.Image, bool, error)
	Put(ctx context.Context, key CropKey, img image.Image) error
}

// MemoryCropStore keeps crops in process memory with a TTL.
type MemoryCropStore struct {
	items *gocache.Cache
}

func NewMemoryCropStore(ttl time.Duration) *MemoryCropStore {
	return &MemoryCropStore{items: gocache.New(ttl, 2*ttl)}
}

func (s *MemoryCropStore) Get(_ context.Context, key CropKey) (image.Image, bool, error) {
	v, ok := s.items.Get(key.String())
	if !ok {
		return nil, false, nil
	}
	img, ok := v.(image.Image)
	return img, ok, nil
}

func (s *MemoryCropStore) Put(_ context.Context, key CropKey, img image.Image) error {
	s.items.SetDefault(key.String(), img)
	return nil
}

// Len reports the number of live entries.
func (s *MemoryCropStore) Len() int {
	return s.items.ItemCount()
}

// RedisCropStore keeps PNG-encoded crops in redis so API replicas and workers share them.
type RedisCropStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisCropStore(rdb *redis.Client, ttl time.Duration) *RedisCropStore {
	return &RedisCropStore{rdb: rdb, ttl: ttl, prefix: "lekhaslides:"}
}

func (s *RedisCropStore) Get(ctx context.Context, key CropKey) (image.Image, bool, error) {
	raw, err := s.rdb.Get(ctx, s.prefix+key.String()).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get crop: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, false, fmt.Errorf("decode stored crop: %w", err)
	}
	return img, true, nil
}

func (s *RedisCropStore) Put(ctx context.Context, key CropKey, img image.Image) error {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode crop: %w", err)
	}
	if err := s.rdb.Set(ctx, s.prefix+key.String(), buf.Bytes(), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set crop: %w", err)
	}
	return nil
}

// NewCropStore builds the store named by mode: "none", "memory" or "redis".
// "none" returns a nil store; rdb is only used for "redis".
func NewCropStore(mode string, ttl time.Duration, rdb *redis.Client) (CropStore, error) {
	switch mode {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryCropStore(ttl), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis crop cache needs a redis client")
		}
		return NewRedisCropStore(rdb, ttl), nil
	default:
		return nil, fmt.Errorf("unknown crop cache %q", mode)
	}
}
