// Package resolve implements the deduplication and canonicalization engine.
//
// A resolution pass collapses every observation of the same real-world event
// (same ExternalID) into one canonical record, resolving update races via
// revision sequence numbers and source priority. Passes are pure: re-running
// on the same inputs yields the same outputs, and a failed pass leaves no
// partial state behind.
package resolve

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/agenda/internal/domain/model"
	"github.com/okian/agenda/pkg/metrics"
)

// ColorResolver assigns display colors to already-deduplicated events.
type ColorResolver interface {
	// ResolveColors returns a color per canonical event id. It never fails;
	// collision avoidance degrades gracefully on palette exhaustion.
	ResolveColors(ctx context.Context, events []model.CanonicalEvent) map[string]string
}

// Result is the complete output of one resolution pass.
type Result struct {
	// CanonicalEvents maps canonical id to the authoritative record.
	CanonicalEvents map[string]model.CanonicalEvent

	// DuplicateGroups records groups that kept more than one surviving
	// observation, keyed by canonical id. Diagnostic only.
	DuplicateGroups map[string][]model.CalendarEvent

	// ColorAssignments maps canonical event id to its display color.
	ColorAssignments map[string]string

	// ResolvedCount is the number of input observations collapsed away.
	ResolvedCount int
}

// Engine groups, resolves, and canonicalizes calendar event observations.
type Engine struct {
	colors ColorResolver
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithColorResolver injects the color collision resolver consulted after
// canonicalization. Without one, passes produce empty color assignments.
func WithColorResolver(colors ColorResolver) Option {
	return func(e *Engine) {
		e.colors = colors
	}
}

// New constructs an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve runs one full pass over a batch of observations. Empty input
// returns empty, zero-cost results. Any internal failure is reported as
// ErrResolutionFailed with the cause attached; no partial results escape.
func (e *Engine) Resolve(ctx context.Context, events []model.CalendarEvent) (res Result, err error) {
	if len(events) == 0 {
		return emptyResult(), nil
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordResolutionFailure()
			res = Result{}
			err = fmt.Errorf("%w: %v", ErrResolutionFailed, r)
		}
	}()

	groups := groupByExternalID(events)

	canonical := make(map[string]model.CanonicalEvent, len(groups))
	dupes := make(map[string][]model.CalendarEvent)
	ordered := make([]model.CanonicalEvent, 0, len(groups))

	for _, g := range groups {
		resolveGroup(g)

		cid, idErr := CanonicalID(g.Primary.ExternalID, g.Primary.FeedID, g.Events)
		if idErr != nil {
			metrics.RecordResolutionFailure()
			return Result{}, fmt.Errorf("%w: %v", ErrResolutionFailed, idErr)
		}
		g.CanonicalID = cid

		ce := model.CanonicalEvent{CalendarEvent: g.Primary}
		ce.ID = cid
		if g.Primary.FriendUserID != "" {
			// Friend-origin events carry a self-pointer so downstream code
			// can join them back to the canonical record.
			ce.CanonicalEventID = cid
		}
		canonical[cid] = ce
		ordered = append(ordered, ce)

		if len(g.Events) > 1 {
			dupes[cid] = g.Events
		}
	}

	colors := make(map[string]string)
	if e.colors != nil {
		colors = e.colors.ResolveColors(ctx, ordered)
	}

	res = Result{
		CanonicalEvents:  canonical,
		DuplicateGroups:  dupes,
		ColorAssignments: colors,
		ResolvedCount:    len(events) - len(canonical),
	}

	metrics.RecordResolutionPass()
	metrics.RecordResolutionLatency(float64(time.Since(start).Milliseconds()))
	metrics.RecordEventsCollapsed(res.ResolvedCount)
	metrics.UpdateCanonicalEvents(len(canonical))
	metrics.UpdateDuplicateGroups(len(dupes))

	return res, nil
}

// CanonicalID derives the stable canonical id for a group. The id only
// changes when the primary event's identity changes.
func CanonicalID(externalID, primaryFeedID string, events []model.CalendarEvent) (string, error) {
	if len(events) == 0 {
		return "", ErrEmptyEventList
	}
	return fmt.Sprintf("canonical:%s:%s", externalID, primaryFeedID), nil
}

func emptyResult() Result {
	return Result{
		CanonicalEvents:  make(map[string]model.CanonicalEvent),
		DuplicateGroups:  make(map[string][]model.CalendarEvent),
		ColorAssignments: make(map[string]string),
	}
}

// groupByExternalID buckets observations into one transient group per
// distinct ExternalID, ordered deterministically.
func groupByExternalID(events []model.CalendarEvent) []*model.EventGroup {
	byExt := make(map[string][]model.CalendarEvent)
	for _, ev := range events {
		byExt[ev.ExternalID] = append(byExt[ev.ExternalID], ev)
	}

	keys := make([]string, 0, len(byExt))
	for k := range byExt {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := make([]*model.EventGroup, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, &model.EventGroup{Events: byExt[k]})
	}
	return groups
}

// resolveGroup discards superseded observations and selects the primary.
// On return g.Events holds the survivors (most recent first), g.Primary the
// winner, g.Sources the union of surviving source identities.
func resolveGroup(g *model.EventGroup) {
	members := g.Events
	sortMembers(members)
	g.HighestSequence = members[0].Sequence

	if len(members) == 1 {
		g.Events = members
		g.Primary = members[0]
		g.Sources = []string{members[0].SourceIdentity()}
		return
	}

	survivors := make([]model.CalendarEvent, 0, len(members))
	for i, ev := range members {
		if ev.Sequence == g.HighestSequence || !superseded(ev, members[:i]) {
			survivors = append(survivors, ev)
		}
	}

	// sortMembers already ordered by sequence desc, priority desc, feed id
	// asc, so the winner is the head of the surviving slice.
	g.Events = survivors
	g.Primary = survivors[0]
	g.Sources = sourceIdentities(survivors)
}

// superseded reports whether a higher-sequence observation makes ev
// redundant: either a newer revision from the same source identity, or a
// newer observation that conflicts with ev (overlapping time, differing
// content). A newer, non-conflicting observation from a different source is
// an independent, compatible observation and does not supersede.
func superseded(ev model.CalendarEvent, newer []model.CalendarEvent) bool {
	for _, h := range newer {
		if h.Sequence <= ev.Sequence {
			continue
		}
		if h.SourceIdentity() == ev.SourceIdentity() {
			return true
		}
		if h.ConflictsWith(ev) {
			return true
		}
	}
	return false
}

// sortMembers orders observations by sequence descending, then source
// priority descending, then feed id ascending as a deterministic tie-break.
func sortMembers(members []model.CalendarEvent) {
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if a.Sequence != b.Sequence {
			return a.Sequence > b.Sequence
		}
		if pa, pb := a.Source.Priority(), b.Source.Priority(); pa != pb {
			return pa > pb
		}
		return a.FeedID < b.FeedID
	})
}

func sourceIdentities(events []model.CalendarEvent) []string {
	seen := make(map[string]struct{}, len(events))
	out := make([]string, 0, len(events))
	for _, ev := range events {
		id := ev.SourceIdentity()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
