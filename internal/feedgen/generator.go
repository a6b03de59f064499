package feedgen

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/okian/agenda/pkg/logger"
)

const randomFloatDivisor = 1000000

// Timezones assigned round-robin to generated feeds.
var feedZones = []string{
	"UTC",
	"America/New_York",
	"Europe/Berlin",
	"Asia/Tokyo",
	"Australia/Sydney",
}

// wireEvent mirrors the service's POST /events event schema.
type wireEvent struct {
	ID           string `json:"id"`
	ExternalID   string `json:"external_id"`
	Sequence     int64  `json:"sequence"`
	FeedID       string `json:"feed_id"`
	Source       string `json:"source"`
	FriendUserID string `json:"friend_user_id,omitempty"`
	Title        string `json:"title"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Timezone     string `json:"timezone,omitempty"`
	IsAllDay     bool   `json:"is_all_day,omitempty"`
	Color        string `json:"color,omitempty"`
}

// wireBatch mirrors the service's POST /events batch schema.
type wireBatch struct {
	FeedID string      `json:"feed_id"`
	Events []wireEvent `json:"events"`
}

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

func randomInt(n int64) int64 {
	v, _ := rand.Int(rand.Reader, big.NewInt(n))
	return v.Int64()
}

// generateFeeds builds synthetic feed batches. A fraction of events is
// mirrored into a second feed under the same external id, some mirrors
// lag behind with a stale sequence, and some feeds belong to friends.
func generateFeeds(ctx context.Context, config *Config, stats *Stats) []wireBatch {
	logger.Get().Info(ctx, "generating synthetic feeds",
		logger.Int("feeds", config.Feeds),
		logger.Int("eventsPerFeed", config.EventsPerFeed),
	)

	batches := make([]wireBatch, config.Feeds)
	now := time.Now().UTC().Truncate(time.Hour)

	for f := range batches {
		feedID := fmt.Sprintf("feed-%02d", f)
		source := "google"
		if f%2 == 1 {
			source = "ical"
		}
		friendID := ""
		if getRandomFloat() < config.FriendRatio {
			friendID = "friend-" + uuid.New().String()[:8]
		}
		zone := feedZones[f%len(feedZones)]

		events := make([]wireEvent, 0, config.EventsPerFeed)
		for i := 0; i < config.EventsPerFeed; i++ {
			events = append(events, generateSingleEvent(feedID, source, friendID, zone, now, i))
		}
		batches[f] = wireBatch{FeedID: feedID, Events: events}
	}

	// Mirror a slice of each feed's events into the next feed so the
	// resolver has duplicates to collapse.
	for f := range batches {
		nextIdx := (f + 1) % len(batches)
		next := &batches[nextIdx]
		nextSource := "google"
		if nextIdx%2 == 1 {
			nextSource = "ical"
		}
		for _, ev := range batches[f].Events {
			if getRandomFloat() >= config.MirrorRatio {
				continue
			}
			mirror := ev
			mirror.ID = uuid.New().String()
			mirror.FeedID = next.FeedID
			mirror.Source = nextSource
			mirror.Sequence = ev.Sequence + 1
			if getRandomFloat() < config.StaleRatio && ev.Sequence > 0 {
				mirror.Sequence = ev.Sequence - 1
			}
			next.Events = append(next.Events, mirror)
		}
	}

	total := 0
	for _, b := range batches {
		total += len(b.Events)
	}
	stats.EventsGenerated = total

	logger.Get().Info(ctx, "generated synthetic feeds", logger.Int("events", total))
	return batches
}

// generateSingleEvent creates one event starting within the next two weeks.
func generateSingleEvent(feedID, source, friendID, zone string, now time.Time, index int) wireEvent {
	start := now.Add(time.Duration(randomInt(14*24)) * time.Hour)
	duration := time.Duration(30+randomInt(150)) * time.Minute

	ev := wireEvent{
		ID:           uuid.New().String(),
		ExternalID:   fmt.Sprintf("%s-ext-%03d", feedID, index),
		Sequence:     randomInt(3),
		FeedID:       feedID,
		Source:       source,
		FriendUserID: friendID,
		Title:        fmt.Sprintf("meeting %s #%d", feedID, index),
		StartTime:    start.Format(time.RFC3339),
		EndTime:      start.Add(duration).Format(time.RFC3339),
		Timezone:     zone,
	}

	switch randomInt(10) {
	case 0:
		// Floating: wall-clock only, no zone.
		ev.Timezone = ""
	case 1:
		day := start.Truncate(24 * time.Hour)
		ev.IsAllDay = true
		ev.StartTime = day.Format(time.RFC3339)
		ev.EndTime = day.Add(24 * time.Hour).Format(time.RFC3339)
	case 2:
		ev.Color = "#388e3c"
	}

	return ev
}
