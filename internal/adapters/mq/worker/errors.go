package worker

import "errors"

// Sentinel kinds for worker errors.
var (
	// ErrShutdownTimeout reports that a worker did not drain before its
	// shutdown deadline.
	ErrShutdownTimeout = errors.New("worker shutdown timed out")
)
