package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	api "github.com/okian/agenda/internal/adapters/http/api"
	"github.com/okian/agenda/internal/adapters/repository"
	"github.com/okian/agenda/internal/domain/model"
	"github.com/okian/agenda/internal/domain/resolve"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDeps implements api.Dependencies for handler tests.
type mockDeps struct {
	ingested    []model.FeedBatch
	rejectNext  bool
	resolveErr  error
	agendaErr   error
	agendaItems []repository.Entry
}

func (m *mockDeps) IngestBatch(ctx context.Context, b model.FeedBatch) bool {
	if m.rejectNext {
		return false
	}
	m.ingested = append(m.ingested, b)
	return true
}

func (m *mockDeps) Resolve(ctx context.Context, events []model.CalendarEvent) (resolve.Result, error) {
	if m.resolveErr != nil {
		return resolve.Result{}, m.resolveErr
	}
	return resolve.New().Resolve(ctx, events)
}

func (m *mockDeps) Agenda(ctx context.Context, zone string, limit int) ([]repository.Entry, error) {
	if m.agendaErr != nil {
		return nil, m.agendaErr
	}
	if limit < len(m.agendaItems) {
		return m.agendaItems[:limit], nil
	}
	return m.agendaItems, nil
}

type mockStats struct{}

func (mockStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true}
}

func newMux(deps *mockDeps) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, mockStats{}, 200).Register(context.Background(), mux)
	return mux
}

func wireEvent(ext, feed string, seq int64) map[string]any {
	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	return map[string]any{
		"external_id": ext,
		"feed_id":     feed,
		"sequence":    seq,
		"source":      "google",
		"title":       "standup",
		"start_time":  start.Format(time.RFC3339),
		"end_time":    start.Add(time.Hour).Format(time.RFC3339),
		"timezone":    "UTC",
	}
}

func postJSON(mux *http.ServeMux, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestPostEvents(t *testing.T) {
	Convey("Given the events endpoint", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("When posting a valid batch", func() {
			rec := postJSON(mux, "/events", map[string]any{
				"feed_id": "feed-1",
				"events":  []map[string]any{wireEvent("ext-1", "feed-1", 0)},
			})

			Convey("Then the batch is accepted", func() {
				So(rec.Code, ShouldEqual, http.StatusAccepted)
				So(deps.ingested, ShouldHaveLength, 1)
				So(deps.ingested[0].FeedID, ShouldEqual, "feed-1")

				var ack map[string]any
				So(json.Unmarshal(rec.Body.Bytes(), &ack), ShouldBeNil)
				So(ack["status"], ShouldEqual, "accepted")
				So(ack["events"], ShouldEqual, float64(1))
			})
		})

		Convey("When posting malformed JSON", func() {
			req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader([]byte("{not json")))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			Convey("Then the request is rejected", func() {
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When posting a batch without a feed id", func() {
			rec := postJSON(mux, "/events", map[string]any{
				"events": []map[string]any{wireEvent("ext-1", "feed-1", 0)},
			})

			Convey("Then validation fails", func() {
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When an event's end precedes its start", func() {
			ev := wireEvent("ext-1", "feed-1", 0)
			ev["end_time"] = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC).Format(time.RFC3339)
			rec := postJSON(mux, "/events", map[string]any{
				"feed_id": "feed-1",
				"events":  []map[string]any{ev},
			})

			Convey("Then validation fails", func() {
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When the queue pushes back", func() {
			deps.rejectNext = true
			rec := postJSON(mux, "/events", map[string]any{
				"feed_id": "feed-1",
				"events":  []map[string]any{wireEvent("ext-1", "feed-1", 0)},
			})

			Convey("Then the caller is told to back off", func() {
				So(rec.Code, ShouldEqual, http.StatusTooManyRequests)

				var resp map[string]any
				So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
				So(resp["code"], ShouldEqual, "backpressure")
			})
		})

		Convey("When using the wrong method", func() {
			req := httptest.NewRequest(http.MethodGet, "/events", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			Convey("Then the route is not found", func() {
				So(rec.Code, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestPostResolve(t *testing.T) {
	Convey("Given the resolve endpoint", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("When posting duplicate observations", func() {
			rec := postJSON(mux, "/resolve", map[string]any{
				"events": []map[string]any{
					wireEvent("ext-1", "feed-1", 0),
					wireEvent("ext-1", "feed-1", 1),
				},
			})

			Convey("Then the pass collapses them", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)

				var resp struct {
					CanonicalEvents map[string]struct {
						Sequence int64 `json:"sequence"`
					} `json:"canonical_events"`
					ResolvedCount int `json:"resolved_count"`
				}
				So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
				So(resp.CanonicalEvents, ShouldHaveLength, 1)
				So(resp.ResolvedCount, ShouldEqual, 1)
				So(resp.CanonicalEvents["canonical:ext-1:feed-1"].Sequence, ShouldEqual, 1)
			})
		})

		Convey("When the pass fails internally", func() {
			deps.resolveErr = errors.New("pass exploded")
			rec := postJSON(mux, "/resolve", map[string]any{
				"events": []map[string]any{wireEvent("ext-1", "feed-1", 0)},
			})

			Convey("Then a resolution failure is reported", func() {
				So(rec.Code, ShouldEqual, http.StatusInternalServerError)

				var resp map[string]any
				So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
				So(resp["code"], ShouldEqual, "resolution_failed")
			})
		})

		Convey("When an event is invalid", func() {
			ev := wireEvent("", "feed-1", 0)
			rec := postJSON(mux, "/resolve", map[string]any{
				"events": []map[string]any{ev},
			})

			Convey("Then validation fails", func() {
				So(rec.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestGetAgenda(t *testing.T) {
	entry := func(id string, start time.Time) repository.Entry {
		ev := model.CanonicalEvent{}
		ev.ID = id
		ev.ExternalID = "ext"
		ev.FeedID = "feed-1"
		ev.Source = model.SourceGoogle
		ev.Title = "standup"
		ev.Timezone = "UTC"
		ev.StartTime = start
		ev.EndTime = start.Add(time.Hour)
		return repository.Entry{Event: ev, Color: "#1976d2"}
	}

	Convey("Given the agenda endpoint", t, func() {
		base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
		deps := &mockDeps{agendaItems: []repository.Entry{
			entry("canonical:ext-1:feed-1", base),
			entry("canonical:ext-2:feed-1", base.Add(time.Hour)),
		}}
		mux := newMux(deps)

		get := func(path string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			return rec
		}

		Convey("When requesting with defaults", func() {
			rec := get("/agenda")

			Convey("Then entries are returned with colors", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)

				var items []map[string]any
				So(json.Unmarshal(rec.Body.Bytes(), &items), ShouldBeNil)
				So(items, ShouldHaveLength, 2)
				So(items[0]["canonical_id"], ShouldEqual, "canonical:ext-1:feed-1")
				So(items[0]["color"], ShouldEqual, "#1976d2")
			})
		})

		Convey("When limiting the page", func() {
			rec := get("/agenda?limit=1")

			Convey("Then only that many entries come back", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)

				var items []map[string]any
				So(json.Unmarshal(rec.Body.Bytes(), &items), ShouldBeNil)
				So(items, ShouldHaveLength, 1)
			})
		})

		Convey("When the limit is malformed", func() {
			So(get("/agenda?limit=zero").Code, ShouldEqual, http.StatusBadRequest)
			So(get("/agenda?limit=0").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the limit exceeds the cap", func() {
			rec := get("/agenda?limit=5000")

			Convey("Then the request is rejected", func() {
				So(rec.Code, ShouldEqual, http.StatusBadRequest)

				var resp map[string]any
				So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
				So(resp["code"], ShouldEqual, "limit_exceeded")
			})
		})

		Convey("When the read fails", func() {
			deps.agendaErr = errors.New("store offline")
			rec := get("/agenda")

			Convey("Then an internal error is reported", func() {
				So(rec.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestGetStats(t *testing.T) {
	Convey("Given the stats endpoint", t, func() {
		mux := newMux(&mockDeps{})

		Convey("When requesting stats", func() {
			req := httptest.NewRequest(http.MethodGet, "/stats", nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			Convey("Then the provider's view is returned", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)

				var stats map[string]any
				So(json.Unmarshal(rec.Body.Bytes(), &stats), ShouldBeNil)
				So(stats["started"], ShouldEqual, true)
			})
		})
	})
}
