package shutdown

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"lekhaslides/internal/pkg/logger"
)

func TestRegister(t *testing.T) {
	mgr := NewManager(logger.Discard(), 5*time.Second)

	mgr.Register("pg", func(ctx context.Context) error { return nil })
	mgr.RegisterSimple("redis", func() {})

	if len(mgr.handlers) != 2 {
		t.Fatalf("expected 2 handlers, got %d", len(mgr.handlers))
	}
	if mgr.handlers[0].Name != "pg" || mgr.handlers[1].Name != "redis" {
		t.Errorf("unexpected handler names %+v", mgr.handlers)
	}
}

func TestDefaultTimeout(t *testing.T) {
	mgr := NewManager(logger.Discard(), 0)
	if mgr.timeout != 30*time.Second {
		t.Errorf("expected 30s default timeout, got %v", mgr.timeout)
	}
}

func TestShutdownRunsHandlersLIFO(t *testing.T) {
	mgr := NewManager(logger.Discard(), 5*time.Second)

	var order []string
	for _, name := range []string{"postgres", "redis", "http"} {
		mgr.Register(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	mgr.Shutdown()

	want := []string{"http", "redis", "postgres"}
	if len(order) != len(want) {
		t.Fatalf("expected %d handlers, got %v", len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], order[i])
		}
	}
}

func TestShutdownContinuesAfterError(t *testing.T) {
	mgr := NewManager(logger.Discard(), 5*time.Second)

	var ran atomic.Bool
	mgr.Register("first", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	mgr.Register("failing", func(ctx context.Context) error {
		return errors.New("close failed")
	})

	mgr.Shutdown()

	if !ran.Load() {
		t.Error("expected handler after a failure to still run")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	mgr := NewManager(logger.Discard(), 5*time.Second)

	var calls atomic.Int32
	mgr.RegisterSimple("count", func() { calls.Add(1) })

	mgr.Shutdown()
	mgr.Shutdown()

	if calls.Load() != 1 {
		t.Errorf("expected one run, got %d", calls.Load())
	}
}

func TestDoneAndContext(t *testing.T) {
	mgr := NewManager(logger.Discard(), 5*time.Second)
	ctx := mgr.Context()

	select {
	case <-mgr.Done():
		t.Fatal("done closed before shutdown")
	case <-ctx.Done():
		t.Fatal("context canceled before shutdown")
	default:
	}

	mgr.Shutdown()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("expected context to be canceled after shutdown")
	}
}

func TestShutdownTimeout(t *testing.T) {
	mgr := NewManager(logger.Discard(), 100*time.Millisecond)

	mgr.Register("slow", func(ctx context.Context) error {
		time.Sleep(5 * time.Second)
		return nil
	})

	start := time.Now()
	mgr.Shutdown()

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("shutdown took too long: %v", elapsed)
	}
}

func TestWaitReturnsOnContextCancel(t *testing.T) {
	mgr := NewManager(logger.Discard(), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	finished := make(chan struct{})
	go func() {
		mgr.Wait(ctx)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after context cancel")
	}
	select {
	case <-mgr.Done():
	default:
		t.Error("expected shutdown to have run")
	}
}
