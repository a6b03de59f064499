// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/agenda/internal/adapters/repository"
	"github.com/okian/agenda/internal/domain/model"
	"github.com/okian/agenda/internal/domain/resolve"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// IngestBatch pushes a feed batch for async processing. Returns false
	// on backpressure.
	IngestBatch(ctx context.Context, b model.FeedBatch) bool

	// Resolve runs one synchronous resolution pass without touching
	// stored state.
	Resolve(ctx context.Context, events []model.CalendarEvent) (resolve.Result, error)

	// Agenda reads upcoming entries converted into the viewer zone.
	Agenda(ctx context.Context, zone string, limit int) ([]repository.Entry, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	eventsHandler  *EventsHandler
	resolveHandler *ResolveHandler
	agendaHandler  *AgendaHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxAgendaLimit int) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		eventsHandler:  NewEventsHandler(deps),
		resolveHandler: NewResolveHandler(deps),
		agendaHandler:  NewAgendaHandler(deps, maxAgendaLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/events", MetricsMiddleware(s.eventsHandler.HandlePostEvents, "events"))
	mux.HandleFunc("/resolve", MetricsMiddleware(s.resolveHandler.HandlePostResolve, "resolve"))
	mux.HandleFunc("/agenda", MetricsMiddleware(s.agendaHandler.HandleGetAgenda, "agenda"))
}

// eventRequest mirrors the wire schema for a single observed event.
type eventRequest struct {
	ID           string `json:"id"`
	ExternalID   string `json:"external_id"`
	Sequence     int64  `json:"sequence"`
	FeedID       string `json:"feed_id"`
	Source       string `json:"source"`
	FriendUserID string `json:"friend_user_id,omitempty"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Location     string `json:"location,omitempty"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Timezone     string `json:"timezone,omitempty"`
	IsAllDay     bool   `json:"is_all_day,omitempty"`
	Color        string `json:"color,omitempty"`
}

func (e eventRequest) validate() error {
	switch {
	case strings.TrimSpace(e.ExternalID) == "":
		return errors.New("missing external_id")
	case strings.TrimSpace(e.FeedID) == "":
		return errors.New("missing feed_id")
	case strings.TrimSpace(e.StartTime) == "":
		return errors.New("missing start_time")
	case strings.TrimSpace(e.EndTime) == "":
		return errors.New("missing end_time")
	case e.Sequence < 0:
		return errors.New("negative sequence")
	}
	start, err := time.Parse(time.RFC3339, e.StartTime)
	if err != nil {
		return errors.New("invalid start_time; must be RFC3339")
	}
	end, err := time.Parse(time.RFC3339, e.EndTime)
	if err != nil {
		return errors.New("invalid end_time; must be RFC3339")
	}
	if end.Before(start) {
		return errors.New("end_time before start_time")
	}
	return nil
}

// toModel converts a validated request into the domain event.
func (e eventRequest) toModel() model.CalendarEvent {
	start, _ := time.Parse(time.RFC3339, e.StartTime)
	end, _ := time.Parse(time.RFC3339, e.EndTime)
	id := e.ID
	if id == "" {
		id = e.FeedID + ":" + e.ExternalID
	}
	return model.CalendarEvent{
		ID:           id,
		ExternalID:   e.ExternalID,
		Sequence:     e.Sequence,
		FeedID:       e.FeedID,
		Source:       model.Source(e.Source),
		FriendUserID: e.FriendUserID,
		Title:        e.Title,
		Description:  e.Description,
		Location:     e.Location,
		StartTime:    start,
		EndTime:      end,
		Timezone:     e.Timezone,
		IsAllDay:     e.IsAllDay,
		Color:        e.Color,
	}
}

// batchRequest mirrors the wire schema for POST /events.
type batchRequest struct {
	FeedID string         `json:"feed_id"`
	Events []eventRequest `json:"events"`
}

func (b batchRequest) validate() error {
	if strings.TrimSpace(b.FeedID) == "" {
		return errors.New("missing feed_id")
	}
	for i := range b.Events {
		ev := b.Events[i]
		if ev.FeedID == "" {
			ev.FeedID = b.FeedID
		}
		if err := ev.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (b batchRequest) toModel() model.FeedBatch {
	events := make([]model.CalendarEvent, 0, len(b.Events))
	for _, ev := range b.Events {
		if ev.FeedID == "" {
			ev.FeedID = b.FeedID
		}
		events = append(events, ev.toModel())
	}
	return model.FeedBatch{FeedID: b.FeedID, Events: events, FetchedAt: time.Now()}
}

type ackResponse struct {
	Status string `json:"status"`
	Events int    `json:"events"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// agendaItem is the read shape for one agenda entry.
type agendaItem struct {
	CanonicalID      string `json:"canonical_id"`
	CanonicalEventID string `json:"canonical_event_id,omitempty"`
	ExternalID       string `json:"external_id"`
	FeedID           string `json:"feed_id"`
	Source           string `json:"source"`
	Title            string `json:"title"`
	Location         string `json:"location,omitempty"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	Timezone         string `json:"timezone"`
	IsAllDay         bool   `json:"is_all_day,omitempty"`
	Color            string `json:"color"`
}

func toAgendaItem(e repository.Entry) agendaItem {
	return agendaItem{
		CanonicalID:      e.Event.ID,
		CanonicalEventID: e.Event.CanonicalEventID,
		ExternalID:       e.Event.ExternalID,
		FeedID:           e.Event.FeedID,
		Source:           string(e.Event.Source),
		Title:            e.Event.Title,
		Location:         e.Event.Location,
		StartTime:        e.Event.StartTime.Format(time.RFC3339),
		EndTime:          e.Event.EndTime.Format(time.RFC3339),
		Timezone:         e.Event.Timezone,
		IsAllDay:         e.Event.IsAllDay,
		Color:            e.Color,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
