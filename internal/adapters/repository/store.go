// Package repository defines the agenda store interface and errors.
package repository

import (
	"context"
	"time"

	"github.com/okian/agenda/internal/domain/model"
	"github.com/okian/agenda/internal/domain/resolve"
)

// Entry represents one canonical event as served from the agenda.
type Entry struct {
	Event model.CanonicalEvent
	Color string
}

// Store provides read/write access to the resolved agenda state.
type Store interface {
	// Apply replaces the stored agenda with the outcome of a resolution
	// pass. The swap is atomic: readers see either the old pass or the
	// new one, never a mix.
	Apply(ctx context.Context, res resolve.Result) error

	// Get returns the entry for a canonical event id.
	// Returns ErrNotFound if the id is unknown.
	Get(ctx context.Context, canonicalID string) (Entry, error)

	// Upcoming returns up to n entries starting at or after from,
	// ordered by start time then canonical id.
	Upcoming(ctx context.Context, from time.Time, n int) ([]Entry, error)

	// Count returns the number of canonical events stored.
	Count(ctx context.Context) int
}
