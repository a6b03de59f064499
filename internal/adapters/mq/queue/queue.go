// Package queue buffers feed batches between ingestion and the refresh
// workers.
//
// The single implementation is an in-memory bounded channel queue;
// enqueue is non-blocking and reports backpressure to the caller.
package queue

import (
	"context"
	"sync"

	"github.com/okian/agenda/internal/domain/model"
	"github.com/okian/agenda/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10000
	defaultBufferSize    = 10000
)

// Batch is the payload type flowing through the queue.
type Batch = model.FeedBatch

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a batch to the queue.
	// Returns false if the queue is full and the batch was not enqueued.
	Enqueue(ctx context.Context, b Batch) bool

	// Dequeue returns a channel that will receive batches as they become
	// available. The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Batch

	// Len returns the current number of queued batches.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue. After closing, no new
	// batches can be enqueued and the dequeue channel is closed.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	batches    chan Batch
	capacity   int
	bufferSize int
	mu         sync.RWMutex
	closed     bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
	}

	for _, opt := range opts {
		opt(q)
	}

	q.batches = make(chan Batch, q.bufferSize)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Enqueue adds a batch to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, b Batch) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	if len(q.batches) >= q.capacity {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "capacity_exceeded")
		return false
	}

	select {
	case q.batches <- b:
		metrics.RecordQueueEnqueue()
		q.publishSize()
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that will receive batches as they become
// available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Batch {
	out := make(chan Batch)
	go func() {
		defer close(out)
		for b := range q.batches {
			select {
			case out <- b:
				metrics.RecordQueueDequeue()
				q.publishSize()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued batches.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	size := len(q.batches)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.batches)
	q.closed = true

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) publishSize() {
	size := len(q.batches)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
