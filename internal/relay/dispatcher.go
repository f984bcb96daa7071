package relay

import (
	"context"
	"log/slog"
	"sync"
)

// Job is a unit of deferred webhook work.
type Job func(ctx context.Context)

// Dispatcher runs jobs on a fixed set of workers fed by a bounded queue. Jobs submitted while
// the queue is full are dropped.
type Dispatcher struct {
	queue  chan Job
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts workers goroutines. Jobs run with ctx, which is cancelled by the caller
// to abort in-flight work.
func NewDispatcher(ctx context.Context, workers, queueSize int, logger *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		queue:  make(chan Job, queueSize),
		logger: logger,
	}
	d.wg.Add(workers)
	for range workers {
		go d.worker(ctx)
	}
	return d
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for job := range d.queue {
		d.run(ctx, job)
	}
}

func (d *Dispatcher) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("relay job panicked", "panic", r)
		}
	}()
	job(ctx)
}

// Enqueue submits a job without blocking. It reports false when the job was dropped.
func (d *Dispatcher) Enqueue(job Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("relay dispatcher closed: job dropped")
		return false
	}
	select {
	case d.queue <- job:
		return true
	default:
		d.logger.Warn("relay queue full: job dropped", "capacity", cap(d.queue))
		return false
	}
}

// Shutdown stops accepting jobs and waits for queued work to finish or ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		d.logger.Warn("relay dispatcher shutdown timed out", "pending", len(d.queue))
		return ctx.Err()
	case <-done:
		d.logger.Info("relay dispatcher drained")
		return nil
	}
}

// Pending returns the number of queued jobs not yet picked up by a worker.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}
