// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/agenda/internal/adapters/repository"
)

// defaultAgendaLimit applies when the request names no limit.
const defaultAgendaLimit = 50

// AgendaDependencies defines the interface for agenda reads.
type AgendaDependencies interface {
	Agenda(ctx context.Context, zone string, limit int) ([]repository.Entry, error)
}

// AgendaHandler handles agenda requests.
type AgendaHandler struct {
	deps     AgendaDependencies
	maxLimit int
}

// NewAgendaHandler creates a new agenda handler.
func NewAgendaHandler(deps AgendaDependencies, maxLimit int) *AgendaHandler {
	return &AgendaHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetAgenda handles GET /agenda?tz=ZONE&limit=N requests.
func (h *AgendaHandler) HandleGetAgenda(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_agenda"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	n := defaultAgendaLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		n = parsed
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
		return
	}

	entries, err := h.deps.Agenda(r.Context(), r.URL.Query().Get("tz"), n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}

	items := make([]agendaItem, len(entries))
	for i, e := range entries {
		items[i] = toAgendaItem(e)
	}
	writeJSON(w, http.StatusOK, items)
}
