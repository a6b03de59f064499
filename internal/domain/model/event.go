// Package model contains domain models passed between layers.
package model

import "time"

// Source identifies the provider an observation came from.
type Source string

// Known providers. Anything else ranks below these when breaking ties.
const (
	SourceGoogle Source = "google"
	SourceICal   Source = "ical"
)

// Source priority ranks used to break ties between conflicting observations.
const (
	priorityGoogle  = 3
	priorityICal    = 2
	priorityDefault = 1
)

// Priority returns the fixed ranking for this provider.
func (s Source) Priority() int {
	switch s {
	case SourceGoogle:
		return priorityGoogle
	case SourceICal:
		return priorityICal
	default:
		return priorityDefault
	}
}

// CalendarEvent is one observation of a real-world event as delivered by a
// feed. Observations are immutable inputs; two records with the same
// ExternalID describe the same real-world event, possibly at different
// revisions or from different sources.
type CalendarEvent struct {
	ID           string    // source-local id
	ExternalID   string    // stable id shared across revisions and sources
	Sequence     int64     // revision counter, monotonically increasing per edit
	FeedID       string    // subscription/calendar the observation came from
	Source       Source    // provider, used for priority
	FriendUserID string    // set only for events mirrored from a friend's calendar
	Title        string
	Description  string
	Location     string
	StartTime    time.Time
	EndTime      time.Time
	Timezone     string // IANA zone name; empty means floating
	IsAllDay     bool
	Color        string // previously assigned color token, may be empty
}

// SourceIdentity returns the identity duplicates are judged against. Friend
// mirrors are identified by the friend user rather than the local feed.
func (e CalendarEvent) SourceIdentity() string {
	if e.FriendUserID != "" {
		return "friend:" + e.FriendUserID
	}
	return "feed:" + e.FeedID
}

// IsFloating reports whether the event carries no timezone.
func (e CalendarEvent) IsFloating() bool {
	return e.Timezone == ""
}

// Overlaps reports whether the two events' time ranges intersect.
func (e CalendarEvent) Overlaps(o CalendarEvent) bool {
	return e.StartTime.Before(o.EndTime) && o.StartTime.Before(e.EndTime)
}

// ContentDiffers reports whether the two observations disagree on any of the
// user-visible content fields.
func (e CalendarEvent) ContentDiffers(o CalendarEvent) bool {
	return e.Title != o.Title || e.Description != o.Description || e.Location != o.Location
}

// ConflictsWith reports whether the two observations conflict: overlapping
// time ranges combined with differing content.
func (e CalendarEvent) ConflictsWith(o CalendarEvent) bool {
	return e.Overlaps(o) && e.ContentDiffers(o)
}

// CanonicalEvent is the single authoritative record chosen to represent all
// duplicate observations of one real-world event. It is a copy of the
// winning observation whose ID has been replaced by the canonical id.
type CanonicalEvent struct {
	CalendarEvent

	// CanonicalEventID is set for friend-sourced events and points at this
	// record's own id, letting downstream code join friend-origin events
	// back to their canonical record.
	CanonicalEventID string
}

// EventGroup collects every observation of one ExternalID during a
// resolution pass. Transient: rebuilt on every pass.
type EventGroup struct {
	CanonicalID     string
	Events          []CalendarEvent // surviving observations, most recent first
	HighestSequence int64
	Primary         CalendarEvent // the resolution winner
	Sources         []string      // contributing source identities, sorted
}

// FeedBatch is one fetch cycle's worth of observations for a single feed.
type FeedBatch struct {
	FeedID    string
	Events    []CalendarEvent
	FetchedAt time.Time
}
