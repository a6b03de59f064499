// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/agenda/internal/domain/model"
)

// EventDependencies defines the interface for batch ingestion.
type EventDependencies interface {
	IngestBatch(ctx context.Context, b model.FeedBatch) bool
}

// EventsHandler handles feed batch submissions.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandlePostEvents handles POST /events requests.
func (h *EventsHandler) HandlePostEvents(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_events"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	b := req.toModel()
	if ok := h.deps.IngestBatch(r.Context(), b); !ok {
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Events: len(b.Events)})
}
