// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/agenda/internal/domain/model"
	"github.com/okian/agenda/internal/domain/resolve"
)

// ResolveDependencies defines the interface for synchronous resolution.
type ResolveDependencies interface {
	Resolve(ctx context.Context, events []model.CalendarEvent) (resolve.Result, error)
}

// ResolveHandler handles synchronous resolution requests.
type ResolveHandler struct {
	deps ResolveDependencies
}

// NewResolveHandler creates a new resolve handler.
func NewResolveHandler(deps ResolveDependencies) *ResolveHandler {
	return &ResolveHandler{deps: deps}
}

// resolveRequest mirrors the wire schema for POST /resolve.
type resolveRequest struct {
	Events []eventRequest `json:"events"`
}

// resolveResponse is the read shape of one resolution pass.
type resolveResponse struct {
	CanonicalEvents map[string]canonicalItem `json:"canonical_events"`
	DuplicateGroups map[string][]string      `json:"duplicate_groups,omitempty"`
	ResolvedCount   int                      `json:"resolved_count"`
}

type canonicalItem struct {
	CanonicalID      string `json:"canonical_id"`
	CanonicalEventID string `json:"canonical_event_id,omitempty"`
	ExternalID       string `json:"external_id"`
	FeedID           string `json:"feed_id"`
	Source           string `json:"source"`
	Sequence         int64  `json:"sequence"`
	Title            string `json:"title"`
	Color            string `json:"color,omitempty"`
}

// HandlePostResolve handles POST /resolve requests.
func (h *ResolveHandler) HandlePostResolve(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_resolve"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	events := make([]model.CalendarEvent, 0, len(req.Events))
	for _, ev := range req.Events {
		if err := ev.validate(); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		events = append(events, ev.toModel())
	}

	res, err := h.deps.Resolve(r.Context(), events)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "resolution_failed", Wrap(op, err))
		return
	}

	writeJSON(w, http.StatusOK, toResolveResponse(res))
}

func toResolveResponse(res resolve.Result) resolveResponse {
	out := resolveResponse{
		CanonicalEvents: make(map[string]canonicalItem, len(res.CanonicalEvents)),
		ResolvedCount:   res.ResolvedCount,
	}
	for id, ev := range res.CanonicalEvents {
		out.CanonicalEvents[id] = canonicalItem{
			CanonicalID:      ev.ID,
			CanonicalEventID: ev.CanonicalEventID,
			ExternalID:       ev.ExternalID,
			FeedID:           ev.FeedID,
			Source:           string(ev.Source),
			Sequence:         ev.Sequence,
			Title:            ev.Title,
			Color:            res.ColorAssignments[id],
		}
	}
	if len(res.DuplicateGroups) > 0 {
		out.DuplicateGroups = make(map[string][]string, len(res.DuplicateGroups))
		for id, members := range res.DuplicateGroups {
			ids := make([]string, 0, len(members))
			for _, m := range members {
				ids = append(ids, m.ID)
			}
			out.DuplicateGroups[id] = ids
		}
	}
	return out
}
