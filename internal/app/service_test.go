package service_test

import (
	"context"
	"testing"
	"time"

	service "github.com/okian/agenda/internal/app"
	"github.com/okian/agenda/internal/domain/model"
	logging "github.com/okian/agenda/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func feedBatch(feedID string, events ...model.CalendarEvent) model.FeedBatch {
	return model.FeedBatch{FeedID: feedID, Events: events, FetchedAt: time.Now()}
}

func timedEvent(ext, feed string, seq int64, start time.Time) model.CalendarEvent {
	return model.CalendarEvent{
		ID:         feed + "-" + ext,
		ExternalID: ext,
		Sequence:   seq,
		FeedID:     feed,
		Source:     model.SourceGoogle,
		Title:      "meeting " + ext,
		Timezone:   "UTC",
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
	}
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		_ = logging.Init()
		svc := service.New(
			service.WithWorkerCount(2),
			service.WithQueueSize(100),
			service.WithSnapshotInterval(50*time.Millisecond),
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		Convey("When starting and stopping", func() {
			err := svc.Start(ctx)
			So(err, ShouldBeNil)

			Convey("Then starting again is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})

			svc.Stop()

			Convey("Then stats report it stopped", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldBeFalse)
			})
		})
	})
}

func TestServiceRefresh(t *testing.T) {
	Convey("Given a started service", t, func() {
		_ = logging.Init()
		svc := service.New(service.WithWorkerCount(1), service.WithSnapshotInterval(50*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		future := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Minute)

		Convey("When refreshing a feed", func() {
			err := svc.Refresh(ctx, feedBatch("feed-1",
				timedEvent("ext-1", "feed-1", 0, future),
				timedEvent("ext-2", "feed-1", 0, future.Add(time.Hour)),
			))
			So(err, ShouldBeNil)

			Convey("Then the agenda serves the canonical events in order", func() {
				entries, err := svc.Agenda(ctx, "UTC", 10)
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 2)
				So(entries[0].Event.ExternalID, ShouldEqual, "ext-1")
				So(entries[1].Event.ExternalID, ShouldEqual, "ext-2")
				So(entries[0].Color, ShouldNotBeEmpty)
			})

			Convey("And the agenda converts into the viewer zone", func() {
				entries, err := svc.Agenda(ctx, "America/New_York", 10)
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 2)
				So(entries[0].Event.Timezone, ShouldEqual, "America/New_York")
				So(entries[0].Event.StartTime.Equal(future), ShouldBeTrue)
			})

			Convey("And refreshing the same feed replaces its observations", func() {
				err := svc.Refresh(ctx, feedBatch("feed-1",
					timedEvent("ext-1", "feed-1", 1, future),
				))
				So(err, ShouldBeNil)

				entries, err := svc.Agenda(ctx, "UTC", 10)
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 1)
				So(entries[0].Event.ExternalID, ShouldEqual, "ext-1")
				So(entries[0].Event.Sequence, ShouldEqual, 1)
			})

			Convey("And an empty batch forgets the feed", func() {
				err := svc.Refresh(ctx, feedBatch("feed-1"))
				So(err, ShouldBeNil)

				entries, err := svc.Agenda(ctx, "UTC", 10)
				So(err, ShouldBeNil)
				So(entries, ShouldBeEmpty)
			})
		})

		Convey("When two feeds mirror the same event", func() {
			So(svc.Refresh(ctx, feedBatch("feed-1",
				timedEvent("ext-1", "feed-1", 1, future),
			)), ShouldBeNil)
			So(svc.Refresh(ctx, feedBatch("feed-2",
				timedEvent("ext-1", "feed-2", 2, future.Add(2*time.Hour)),
			)), ShouldBeNil)

			Convey("Then a single canonical event remains", func() {
				entries, err := svc.Agenda(ctx, "UTC", 10)
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 1)
				So(entries[0].Event.ID, ShouldEqual, "canonical:ext-1:feed-2")
			})
		})
	})
}

func TestServiceIngest(t *testing.T) {
	Convey("Given a started service", t, func() {
		_ = logging.Init()
		svc := service.New(service.WithWorkerCount(2), service.WithSnapshotInterval(50*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		future := time.Now().Add(24 * time.Hour).UTC()

		Convey("When ingesting a batch asynchronously", func() {
			ok := svc.IngestBatch(ctx, feedBatch("feed-1",
				timedEvent("ext-1", "feed-1", 0, future),
			))
			So(ok, ShouldBeTrue)

			time.Sleep(100 * time.Millisecond)

			Convey("Then a worker applies it to the agenda", func() {
				entries, err := svc.Agenda(ctx, "UTC", 10)
				So(err, ShouldBeNil)
				So(entries, ShouldHaveLength, 1)
			})
		})
	})
}

func TestServiceResolve(t *testing.T) {
	Convey("Given a started service", t, func() {
		_ = logging.Init()
		svc := service.New(service.WithWorkerCount(1))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

		Convey("When resolving a batch synchronously", func() {
			res, err := svc.Resolve(ctx, []model.CalendarEvent{
				timedEvent("ext-1", "feed-1", 0, start),
				timedEvent("ext-1", "feed-1", 1, start),
			})

			Convey("Then the pass result is returned without touching state", func() {
				So(err, ShouldBeNil)
				So(res.CanonicalEvents, ShouldHaveLength, 1)
				So(res.ResolvedCount, ShouldEqual, 1)
				So(res.ColorAssignments, ShouldHaveLength, 1)

				entries, err := svc.Agenda(ctx, "UTC", 10)
				So(err, ShouldBeNil)
				So(entries, ShouldBeEmpty)
			})
		})
	})
}

func TestServiceStats(t *testing.T) {
	Convey("Given a started service", t, func() {
		_ = logging.Init()
		svc := service.New(service.WithWorkerCount(1), service.WithQueueSize(50))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When reading stats", func() {
			stats := svc.GetStats()

			Convey("Then config and live counters are reported", func() {
				So(stats["started"], ShouldBeTrue)
				So(stats["workerCount"], ShouldEqual, 1)
				So(stats["queueSize"], ShouldEqual, 50)
				So(stats, ShouldContainKey, "canonicalEvents")
				So(stats, ShouldContainKey, "queueLength")
			})
		})
	})
}
