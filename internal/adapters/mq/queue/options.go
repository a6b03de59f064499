package queue

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum capacity of the queue.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
			q.bufferSize = capacity
		}
	}
}

// WithBufferSize sets the buffer size for the batches channel
// independently of the capacity bound.
func WithBufferSize(size int) Option {
	return func(q *InMemoryQueue) {
		if size > 0 {
			q.bufferSize = size
		}
	}
}
