package relay

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcherRunsAndDrains(t *testing.T) {
	d := NewDispatcher(context.Background(), 2, 16, nil)

	var done atomic.Int32
	for i := 0; i < 10; i++ {
		if !d.Enqueue(func(ctx context.Context) {
			time.Sleep(time.Millisecond)
			done.Add(1)
		}) {
			t.Fatalf("Enqueue(%d) dropped", i)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if got := done.Load(); got != 10 {
		t.Errorf("completed jobs = %d, want 10", got)
	}
	if d.Enqueue(func(context.Context) {}) {
		t.Error("Enqueue() after Shutdown should drop")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := NewDispatcher(context.Background(), 1, 1, nil)
	block := make(chan struct{})
	started := make(chan struct{})

	d.Enqueue(func(context.Context) {
		close(started)
		<-block
	})
	<-started
	if !d.Enqueue(func(context.Context) {}) {
		t.Fatal("second job should fit the queue")
	}
	if d.Enqueue(func(context.Context) {}) {
		t.Error("third job should be dropped")
	}

	close(block)
	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestDispatcherRecoversPanics(t *testing.T) {
	d := NewDispatcher(context.Background(), 1, 4, nil)
	var ran atomic.Bool
	d.Enqueue(func(context.Context) { panic("boom") })
	d.Enqueue(func(context.Context) { ran.Store(true) })

	if err := d.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !ran.Load() {
		t.Error("job after panic did not run")
	}
}
