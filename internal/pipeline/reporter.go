package pipeline

import (
	"lekhaslides/internal/slides"
)

// Reporter turns job completions into progress events. One goroutine owns the count,
// so current rises by exactly one per completion no matter which slide finished.
type Reporter struct {
	total    int
	sink     Sink
	done     chan slides.RenderedSlide
	finished chan struct{}
	current  int
	failed   int
}

// NewReporter returns a reporter for a batch of total jobs. Call Start before Done.
func NewReporter(total int, sink Sink) *Reporter {
	if sink == nil {
		sink = func(Event) {}
	}
	return &Reporter{
		total: total,
		sink:  sink,
		// Sized to the batch so workers never wait on the sink.
		done:     make(chan slides.RenderedSlide, total),
		finished: make(chan struct{}),
	}
}

func (r *Reporter) Start() {
	go func() {
		defer close(r.finished)
		for s := range r.done {
			if r.current >= r.total {
				continue
			}
			r.current++
			if s.Failed {
				r.failed++
			}
			r.sink(progressEvent(r.current, r.total))
		}
	}()
}

// Done records one finished job. Safe for concurrent use.
func (r *Reporter) Done(s slides.RenderedSlide) {
	r.done <- s
}

// Close waits until every recorded completion has been reported.
func (r *Reporter) Close() {
	close(r.done)
	<-r.finished
}

// Current is the number of completions reported. Valid after Close.
func (r *Reporter) Current() int { return r.current }

// Failed is the number of fallback slides reported. Valid after Close.
func (r *Reporter) Failed() int { return r.failed }
