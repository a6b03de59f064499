// Package tz normalizes event times into a viewer's timezone. Floating
// times keep their wall clock, absolute times keep their instant, and
// times landing inside a DST gap are shifted forward one hour. Every
// operation degrades to the input on failure rather than erroring.
package tz

import (
	"context"
	"time"

	"github.com/okian/agenda/internal/domain/model"
	"github.com/okian/agenda/pkg/logger"
	"github.com/okian/agenda/pkg/metrics"
)

// Normalizer converts event times for display.
type Normalizer struct {
	log logger.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLogger attaches a logger for conversion diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(n *Normalizer) {
		n.log = l
	}
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ConvertToLocalTime rewrites the event's start and end into the viewer's
// zone. Floating events are reinterpreted: their wall clock stays put and
// the zone is attached. Zoned events are converted instant-for-instant.
// An unknown viewer zone leaves the event untouched.
func (n *Normalizer) ConvertToLocalTime(ev model.CalendarEvent, viewerZone string) model.CalendarEvent {
	loc, err := time.LoadLocation(viewerZone)
	if err != nil {
		n.warn("unknown viewer timezone, leaving event as-is",
			logger.String("zone", viewerZone),
			logger.String("event_id", ev.ID))
		metrics.RecordTZConversionFallback()
		return ev
	}

	if ev.Timezone == viewerZone && !ev.IsFloating() {
		return ev
	}

	if ev.IsFloating() {
		ev.StartTime = reinterpret(ev.StartTime, loc)
		ev.EndTime = reinterpret(ev.EndTime, loc)
	} else {
		ev.StartTime = ev.StartTime.In(loc)
		ev.EndTime = ev.EndTime.In(loc)
	}
	ev.Timezone = viewerZone
	metrics.RecordTZConversion()
	return ev
}

// LocalDayBounds returns the inclusive bounds of the calendar day holding
// t in the given zone: 00:00:00.000 through 23:59:59.999 local time. An
// unknown zone falls back to the day in t's own location.
func (n *Normalizer) LocalDayBounds(t time.Time, zone string) (time.Time, time.Time) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		n.warn("unknown timezone for day bounds", logger.String("zone", zone))
		metrics.RecordTZConversionFallback()
		loc = t.Location()
	}

	local := t.In(loc)
	y, m, d := local.Date()
	start := wallClock(y, m, d, 0, 0, 0, 0, loc)
	end := wallClock(y, m, d, 23, 59, 59, int(999*time.Millisecond), loc)
	return start, end
}

// ValidateAllDayEvent checks that an all-day event spans exactly zero or
// one calendar days in its own zone. Non-all-day events and events with
// unset times are always valid.
func (n *Normalizer) ValidateAllDayEvent(ev model.CalendarEvent) bool {
	if !ev.IsAllDay {
		return true
	}
	if ev.StartTime.IsZero() || ev.EndTime.IsZero() {
		return true
	}

	loc := time.UTC
	if ev.Timezone != "" {
		l, err := time.LoadLocation(ev.Timezone)
		if err != nil {
			n.warn("unknown event timezone, validating in UTC",
				logger.String("zone", ev.Timezone),
				logger.String("event_id", ev.ID))
			metrics.RecordTZConversionFallback()
		} else {
			loc = l
		}
	}

	days := calendarDays(ev.StartTime.In(loc), ev.EndTime.In(loc))
	return days == 0 || days == 1
}

// reinterpret keeps t's wall clock but attaches loc, fixing up DST gaps.
func reinterpret(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return wallClock(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// wallClock builds the requested local time in loc. A wall clock inside a
// DST spring-forward gap does not exist; such times are shifted one hour
// later, landing just past the transition.
func wallClock(y int, m time.Month, d, hh, mm, ss, ns int, loc *time.Location) time.Time {
	t := time.Date(y, m, d, hh, mm, ss, ns, loc)
	ty, tm, td := t.Date()
	if ty == y && tm == m && td == d && t.Hour() == hh && t.Minute() == mm {
		return t
	}
	metrics.RecordTZGapCorrection()
	return time.Date(y, m, d, hh+1, mm, ss, ns, loc)
}

// calendarDays counts whole calendar-day steps between two local times.
func calendarDays(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua) / (24 * time.Hour))
}

func (n *Normalizer) warn(msg string, fields ...logger.Field) {
	if n.log != nil {
		n.log.Warn(context.Background(), msg, fields...)
	}
}
