package pipeline

import (
	"lekhaslides/internal/pkg/errors"
)

// DefaultPageSize is used when a pagination request does not name one.
const DefaultPageSize = 20

// MaxPageSize bounds how many previews one page may render.
const MaxPageSize = 100

// Window is the slice of a batch one page covers: items [Start, End).
type Window struct {
	Start      int
	End        int
	TotalPages int
}

// Paginate selects page (1-based) of size out of total items.
func Paginate(total, page, size int) (Window, error) {
	if total <= 0 {
		return Window{}, errors.BatchInput("at least one content item is required")
	}
	if size < 1 || size > MaxPageSize {
		return Window{}, errors.ValidationField("page_size", "page_size must be between 1 and 100")
	}
	pages := (total + size - 1) / size
	if page < 1 || page > pages {
		return Window{}, errors.ValidationField("page", "page out of range").
			WithField("total_pages", pages)
	}
	start := (page - 1) * size
	return Window{Start: start, End: min(start+size, total), TotalPages: pages}, nil
}
