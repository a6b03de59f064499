package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	worker "github.com/okian/agenda/internal/adapters/mq/worker"
	model "github.com/okian/agenda/internal/domain/model"
	logging "github.com/okian/agenda/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockQueue struct {
	batchChan  chan worker.Batch
	closeError error
}

func newMockQueue() *mockQueue {
	return &mockQueue{
		batchChan: make(chan worker.Batch, 10),
	}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan worker.Batch {
	return mq.batchChan
}

func (mq *mockQueue) Close() error {
	close(mq.batchChan)
	return mq.closeError
}

func (mq *mockQueue) addBatch(b worker.Batch) {
	mq.batchChan <- b
}

type mockRefresher struct {
	refreshed map[string]int
	errors    map[string]error
	mu        sync.RWMutex
}

func newMockRefresher() *mockRefresher {
	return &mockRefresher{
		refreshed: make(map[string]int),
		errors:    make(map[string]error),
	}
}

func (mr *mockRefresher) Refresh(ctx context.Context, b worker.Batch) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	if err, exists := mr.errors[b.FeedID]; exists {
		return err
	}

	mr.refreshed[b.FeedID] = len(b.Events)
	return nil
}

func (mr *mockRefresher) setError(feedID string, err error) {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	mr.errors[feedID] = err
}

func (mr *mockRefresher) getRefresh(feedID string) (int, bool) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	n, exists := mr.refreshed[feedID]
	return n, exists
}

func feedBatch(feedID string, n int) worker.Batch {
	events := make([]model.CalendarEvent, n)
	for i := range events {
		events[i] = model.CalendarEvent{
			ID:         fmt.Sprintf("%s-ev%d", feedID, i),
			ExternalID: fmt.Sprintf("ext-%d", i),
			FeedID:     feedID,
		}
	}
	return model.FeedBatch{FeedID: feedID, Events: events, FetchedAt: time.Now()}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		queue := newMockQueue()
		refresher := newMockRefresher()

		convey.Convey("When creating a worker with default options", func() {
			worker := worker.NewInMemoryWorker(queue, refresher)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(worker, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When creating a worker with custom options", func() {
			worker := worker.NewInMemoryWorker(
				queue, refresher,
				worker.WithName("test-worker"),
			)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(worker, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When running a worker", func() {
			worker := worker.NewInMemoryWorker(queue, refresher)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go worker.Run(ctx)

			time.Sleep(10 * time.Millisecond)

			convey.Convey("And when processing batches", func() {
				queue.addBatch(feedBatch("feed-1", 3))

				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then it should refresh the feed", func() {
					n, refreshed := refresher.getRefresh("feed-1")
					convey.So(refreshed, convey.ShouldBeTrue)
					convey.So(n, convey.ShouldEqual, 3)
				})
			})

			convey.Convey("And when refreshing fails", func() {
				refresher.setError("feed-2", errors.New("refresh error"))

				queue.addBatch(feedBatch("feed-2", 1))

				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then the feed is not recorded as refreshed", func() {
					_, refreshed := refresher.getRefresh("feed-2")
					convey.So(refreshed, convey.ShouldBeFalse)
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer shutdownCancel()

				err := worker.Shutdown(shutdownCtx)

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(err, convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When context is cancelled", func() {
			worker := worker.NewInMemoryWorker(queue, refresher)
			ctx, cancel := context.WithCancel(context.Background())

			go worker.Run(ctx)

			time.Sleep(10 * time.Millisecond)

			cancel()

			time.Sleep(50 * time.Millisecond)

			convey.Convey("Then worker should stop", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer shutdownCancel()
				convey.So(worker.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a new WorkerPool", t, func() {
		_ = logging.Init()

		queue := newMockQueue()
		refresher := newMockRefresher()

		convey.Convey("When creating a worker pool with default count", func() {
			pool := worker.NewPool(0, queue, refresher)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(pool, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When creating a worker pool with custom count", func() {
			pool := worker.NewPool(3, queue, refresher)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(pool, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When starting a worker pool", func() {
			pool := worker.NewPool(2, queue, refresher)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			pool.Start(ctx)

			time.Sleep(20 * time.Millisecond)

			convey.Convey("And when processing multiple batches", func() {
				feeds := []string{"feed-1", "feed-2", "feed-3"}
				for _, f := range feeds {
					queue.addBatch(feedBatch(f, 2))
				}

				time.Sleep(100 * time.Millisecond)

				convey.Convey("Then all batches should be processed", func() {
					for _, f := range feeds {
						n, refreshed := refresher.getRefresh(f)
						convey.So(refreshed, convey.ShouldBeTrue)
						convey.So(n, convey.ShouldEqual, 2)
					}
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
				defer shutdownCancel()

				err := pool.Shutdown(shutdownCtx)

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(err, convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When stopping a worker pool", func() {
			pool := worker.NewPool(2, queue, refresher)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			pool.Start(ctx)

			time.Sleep(20 * time.Millisecond)

			_ = queue.Close()
			pool.Stop()

			convey.Convey("Then stopping completes without hanging", func() {
				convey.So(pool, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestWorkerConcurrency(t *testing.T) {
	convey.Convey("Given a worker pool with multiple workers", t, func() {
		_ = logging.Init()

		queue := newMockQueue()
		refresher := newMockRefresher()

		pool := worker.NewPool(4, queue, refresher)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		pool.Start(ctx)

		time.Sleep(20 * time.Millisecond)

		convey.Convey("When processing many concurrent batches", func() {
			const batchCount = 100
			var wg sync.WaitGroup

			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func(producerID int) {
					defer wg.Done()
					for j := 0; j < batchCount/5; j++ {
						queue.addBatch(feedBatch(fmt.Sprintf("feed-%d-%d", producerID, j), 1))
					}
				}(i)
			}

			wg.Wait()

			time.Sleep(200 * time.Millisecond)

			convey.Convey("Then all batches should be processed", func() {
				processedCount := 0
				for i := 0; i < 5; i++ {
					for j := 0; j < batchCount/5; j++ {
						if _, refreshed := refresher.getRefresh(fmt.Sprintf("feed-%d-%d", i, j)); refreshed {
							processedCount++
						}
					}
				}
				convey.So(processedCount, convey.ShouldEqual, batchCount)
			})
		})
	})
}

func TestWorkerErrorHandling(t *testing.T) {
	convey.Convey("Given a worker with error conditions", t, func() {
		_ = logging.Init()

		queue := newMockQueue()
		refresher := newMockRefresher()

		worker := worker.NewInMemoryWorker(queue, refresher)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go worker.Run(ctx)

		time.Sleep(10 * time.Millisecond)

		convey.Convey("When refreshing consistently fails", func() {
			refresher.setError("feed-error", errors.New("persistent refresh error"))

			queue.addBatch(feedBatch("feed-error", 1))

			time.Sleep(50 * time.Millisecond)

			convey.Convey("Then the feed stays unrefreshed and the worker lives on", func() {
				_, refreshed := refresher.getRefresh("feed-error")
				convey.So(refreshed, convey.ShouldBeFalse)

				queue.addBatch(feedBatch("feed-after", 1))
				time.Sleep(50 * time.Millisecond)
				_, refreshed = refresher.getRefresh("feed-after")
				convey.So(refreshed, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When queue channel is closed", func() {
			_ = queue.Close()

			time.Sleep(50 * time.Millisecond)

			convey.Convey("Then worker shuts down cleanly", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer shutdownCancel()
				convey.So(worker.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}
