// Package worker drains the feed-batch queue and applies each batch to
// the agenda through a Refresher.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/agenda/internal/domain/model"
	"github.com/okian/agenda/pkg/logger"
	"github.com/okian/agenda/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	workerShutdownTimeout   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Batch abstracts what workers read off the queue.
type Batch = model.FeedBatch

// Refresher folds one feed batch into the current agenda state.
type Refresher interface {
	Refresh(ctx context.Context, b Batch) error
}

// Queue defines how workers receive batches.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Batch
}

// Worker processes feed batches from the queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	// It will process any remaining batches before stopping.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing batches.
type InMemoryWorker struct {
	queue     Queue
	refresher Refresher
	name      string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, refresher Refresher, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		refresher: refresher,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer func() {
		close(w.done)
	}()

	batchChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case b, ok := <-batchChan:
			if !ok {
				return
			}

			if err := w.processBatch(ctx, b); err != nil {
				w.logger.Error(ctx, "error processing batch", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("%w: %v", ErrShutdownTimeout, ctx.Err())
	}
}

// processBatch applies a single feed batch.
func (w *InMemoryWorker) processBatch(ctx context.Context, b Batch) error {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordWorkerProcessingLatency(float64(latency))
	}()

	if err := w.refresher.Refresh(ctx, b); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "refresh_error")
		w.logger.Error(ctx, "refresh failed for batch",
			logger.String("feedID", b.FeedID),
			logger.Int("events", len(b.Events)),
			logger.Error(err),
		)
		return fmt.Errorf("failed to refresh feed %s: %w", b.FeedID, err)
	}

	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers   []*InMemoryWorker
	queue     Queue
	refresher Refresher

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, queue Queue, refresher Refresher) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:   make([]*InMemoryWorker, workerCount),
		queue:     queue,
		refresher: refresher,
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(
			queue,
			refresher,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	close(p.shutdown)

	for _, worker := range p.workers {
		select {
		case <-worker.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}

// Shutdown gracefully shuts down the entire worker pool.
func (p *Pool) Shutdown(ctx context.Context) error {
	// Close the queue first so workers drain and exit.
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	close(p.shutdown)

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	return nil
}
