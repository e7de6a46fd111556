// Package models holds the records the API and the worker persist.
package models

import (
	"time"

	"github.com/oklog/ulid/v2"

	"lekhaslides/internal/slides"
)

type BatchStatus string

const (
	BatchQueued  BatchStatus = "QUEUED"
	BatchRunning BatchStatus = "RUNNING"
	BatchDone    BatchStatus = "DONE"
	BatchFailed  BatchStatus = "FAILED"
)

// Valid reports whether s is a known status.
func (s BatchStatus) Valid() bool {
	switch s {
	case BatchQueued, BatchRunning, BatchDone, BatchFailed:
		return true
	}
	return false
}

// Batch is one asynchronous deck generation.
type Batch struct {
	ID           string      `json:"id"`
	Title        string      `json:"title,omitempty"`
	Status       BatchStatus `json:"status"`
	Total        int         `json:"total"`
	Completed    int         `json:"completed"`
	FailedSlides int         `json:"failed_slides"`
	Provider     string      `json:"provider"`
	InputKey     string      `json:"-"`
	DeckKey      string      `json:"-"`
	DeckSize     int64       `json:"deck_size,omitempty"`
	Error        string      `json:"error,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
}

// HasDeck reports whether the deck can be downloaded.
func (b *Batch) HasDeck() bool {
	return b.Status == BatchDone && b.DeckKey != ""
}

// BatchInput is what the API stores for the worker: everything needed to re-run
// the batch without the original request.
type BatchInput struct {
	Title      string                `json:"title,omitempty"`
	Background slides.ImageData      `json:"background"`
	Items      []slides.ContentItem  `json:"items"`
	Style      *slides.StyleOverride `json:"config,omitempty"`
}

// NewBatchID returns a sortable batch id.
func NewBatchID() string {
	return "bat_" + ulid.Make().String()
}

// InputKey is where the API stores a batch's BatchInput.
func InputKey(batchID string) string {
	return "batches/" + batchID + "/input.json"
}

// DeckKey is where the worker uploads a batch's deck.
func DeckKey(batchID string) string {
	return "decks/" + batchID + ".pptx"
}
