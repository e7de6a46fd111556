package processor

import (
	"context"

	"lekhaslides/internal/pkg/logger"
	"lekhaslides/internal/ports"
)

type Cleanup struct {
	sp      ports.StorageProvider
	enabled bool
	log     *logger.Logger
}

func NewCleanup(sp ports.StorageProvider, enabled bool, log *logger.Logger) *Cleanup {
	return &Cleanup{sp: sp, enabled: enabled, log: log}
}

// Input deletes a processed batch input. Failures are logged, never returned: the
// batch is already DONE.
func (c *Cleanup) Input(ctx context.Context, key string) {
	if !c.enabled || key == "" {
		return
	}
	if err := c.sp.DeleteObject(ctx, key); err != nil {
		c.log.FromContext(ctx).Warn("failed to delete batch input", "key", key, "error", err.Error())
	}
}
