// Package repository defines the agenda store interface and errors.
package repository

import "time"

// Option applies a configuration option to the AgendaStore.
type Option func(*AgendaStore)

// WithSnapshotInterval sets how often the read snapshot is republished.
func WithSnapshotInterval(interval time.Duration) Option {
	return func(s *AgendaStore) {
		if interval > 0 {
			s.snapshotInterval = interval
		}
	}
}
