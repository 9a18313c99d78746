package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrPoolStopped is returned by Stop when called more than once.
var ErrPoolStopped = errors.New("async: worker pool already stopped")

// Job is a unit of background work. It receives no request context; jobs own
// their deadlines.
type Job func()

// WorkerPool runs jobs on a fixed set of long-lived goroutines fed by a
// bounded queue. Its lifetime is the process, not any single request.
type WorkerPool struct {
	name    string
	workers int
	jobs    chan Job
	logger  *slog.Logger
	onPanic func(recovered any)

	mu      sync.RWMutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// WorkerPoolOption customizes a WorkerPool.
type WorkerPoolOption func(*WorkerPool)

// WithPanicHandler registers a callback invoked after a job panic is recovered.
func WithPanicHandler(fn func(recovered any)) WorkerPoolOption {
	return func(p *WorkerPool) {
		p.onPanic = fn
	}
}

func NewWorkerPool(name string, workers, queueSize int, logger *slog.Logger, opts ...WorkerPoolOption) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &WorkerPool{
		name:    name,
		workers: workers,
		jobs:    make(chan Job, queueSize),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. Calling Start more than once is a no-op.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.logger.Info("Worker pool started",
		slog.String("pool", p.name),
		slog.Int("workers", p.workers),
		slog.Int("queue_size", cap(p.jobs)))
}

// TrySubmit enqueues job without blocking. It returns false when the queue is
// full or the pool has been stopped.
func (p *WorkerPool) TrySubmit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Stop refuses new jobs and waits for queued ones to drain, or for ctx to end.
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolStopped
	}
	p.stopped = true
	close(p.jobs)
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Worker pool drained", slog.String("pool", p.name))
		return nil
	case <-ctx.Done():
		p.logger.Warn("Worker pool stop timed out",
			slog.String("pool", p.name),
			slog.Int("pending_jobs", len(p.jobs)))
		return ctx.Err()
	}
}

// Stopped reports whether Stop has been called.
func (p *WorkerPool) Stopped() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stopped
}

// Pending returns the number of queued jobs not yet picked up by a worker.
func (p *WorkerPool) Pending() int {
	return len(p.jobs)
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.runSafely(job)
	}
}

func (p *WorkerPool) runSafely(job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Panic recovered in background job",
				slog.String("pool", p.name),
				slog.Any("panic", r))
			if p.onPanic != nil {
				p.onPanic(r)
			}
		}
	}()
	job()
}
