// Package feedgen generates synthetic calendar feeds and submits them to
// a running agenda service, then reads the agenda back to sanity-check
// the deployment.
package feedgen

import "time"

// Config holds the generator settings.
type Config struct {
	BaseURL       string
	Feeds         int
	EventsPerFeed int
	// MirrorRatio is the fraction of events that also appear in another
	// feed under the same external id.
	MirrorRatio float64
	// StaleRatio is the fraction of mirrored events submitted with an
	// older sequence than their counterpart.
	StaleRatio float64
	// FriendRatio is the fraction of feeds marked as friend calendars.
	FriendRatio float64
	Workers     int
	Timeout     time.Duration
	AgendaLimit int
	Verbose     bool
}

// Stats accumulates the run outcome.
type Stats struct {
	EventsGenerated  int
	BatchesSubmitted int
	BatchesAccepted  int
	BatchesRejected  int
	AgendaEntries    int
}
