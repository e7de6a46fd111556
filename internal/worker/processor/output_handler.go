package processor

import (
	"bytes"
	"context"
	"fmt"

	"lekhaslides/internal/deck"
	"lekhaslides/internal/models"
	"lekhaslides/internal/ports"
)

type OutputHandler struct {
	sp ports.StorageProvider
}

func NewOutputHandler(sp ports.StorageProvider) *OutputHandler {
	return &OutputHandler{sp: sp}
}

// Upload stores the deck and returns the key to fetch it by, which for gdrive is
// the Drive file id rather than the requested key.
func (oh *OutputHandler) Upload(ctx context.Context, batchID string, artifact []byte) (key string, size int64, err error) {
	out, err := oh.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   models.DeckKey(batchID),
		ContentType: deck.ContentType,
		Reader:      bytes.NewReader(artifact),
		Size:        int64(len(artifact)),
	})
	if err != nil {
		return "", 0, fmt.Errorf("upload deck: %w", err)
	}
	if out.Size == 0 {
		out.Size = int64(len(artifact))
	}
	return out.ObjectKey, out.Size, nil
}
