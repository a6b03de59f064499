package resolve

import "errors"

// Sentinel kinds for resolution errors.
var (
	// ErrResolutionFailed wraps any unexpected failure during grouping,
	// conflict resolution, or canonicalization. The whole pass is void;
	// callers should retry the batch.
	ErrResolutionFailed = errors.New("resolution failed")

	// ErrEmptyEventList guards direct canonical-id assignment on an empty
	// group. The normal Resolve path never hits it: empty input
	// short-circuits before grouping.
	ErrEmptyEventList = errors.New("empty event list")
)
