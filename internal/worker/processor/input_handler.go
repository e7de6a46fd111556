package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"lekhaslides/internal/models"
	"lekhaslides/internal/pipeline"
	"lekhaslides/internal/ports"
)

// MaxInputBytes bounds a stored batch input.
const MaxInputBytes = 256 << 20

type InputHandler struct {
	sp ports.StorageProvider
}

func NewInputHandler(sp ports.StorageProvider) *InputHandler {
	return &InputHandler{sp: sp}
}

// Load reads the BatchInput stored at key and turns it into a pipeline request.
func (ih *InputHandler) Load(ctx context.Context, key string) (pipeline.BatchRequest, error) {
	rc, _, _, err := ih.sp.GetObject(ctx, key)
	if err != nil {
		return pipeline.BatchRequest{}, fmt.Errorf("download input %s: %w", key, err)
	}
	defer rc.Close()

	var in models.BatchInput
	if err := json.NewDecoder(io.LimitReader(rc, MaxInputBytes)).Decode(&in); err != nil {
		return pipeline.BatchRequest{}, fmt.Errorf("decode input %s: %w", key, err)
	}

	return pipeline.BatchRequest{
		Background: in.Background,
		Items:      in.Items,
		Style:      in.Style,
		Title:      in.Title,
	}, nil
}
