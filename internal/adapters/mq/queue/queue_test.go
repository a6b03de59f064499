package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/okian/agenda/internal/domain/model"
)

func batch(feedID string, n int) model.FeedBatch {
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

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, batch("feed-1", 3)) {
		t.Error("expected enqueue to succeed")
	}

	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	batchChan := q.Dequeue(ctx)
	b := <-batchChan
	if b.FeedID != "feed-1" {
		t.Errorf("expected feed-1, got %v", b.FeedID)
	}
	if len(b.Events) != 3 {
		t.Errorf("expected 3 events, got %d", len(b.Events))
	}

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, batch("feed-1", 1)) {
		t.Error("expected enqueue to succeed")
	}
	if !q.Enqueue(ctx, batch("feed-2", 1)) {
		t.Error("expected enqueue to succeed")
	}

	// Enqueue when full must report backpressure.
	if q.Enqueue(ctx, batch("feed-3", 1)) {
		t.Error("expected enqueue to fail when full")
	}

	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx := context.Background()
	numGoroutines := 10
	numBatches := 100

	done := make(chan bool, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			for j := 0; j < numBatches; j++ {
				b := batch(fmt.Sprintf("feed-%d-%d", id, j), 1)
				for !q.Enqueue(ctx, b) {
					time.Sleep(time.Millisecond)
				}
			}
			done <- true
		}(i)
	}

	consumed := make(chan string, numGoroutines*numBatches)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			batchChan := q.Dequeue(ctx)
			for b := range batchChan {
				consumed <- b.FeedID
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	time.Sleep(100 * time.Millisecond)

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected final length 0, got %d", l)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, batch("feed-1", 1)) {
		t.Error("expected enqueue to succeed")
	}
	if !q.Enqueue(ctx, batch("feed-2", 1)) {
		t.Error("expected enqueue to succeed")
	}

	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}

	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}

	if q.Enqueue(ctx, batch("feed-3", 1)) {
		t.Error("expected enqueue to fail after closing")
	}

	// Remaining batches drain, then the channel closes.
	batchChan := q.Dequeue(ctx)

	timeout := time.After(100 * time.Millisecond)
	for {
		select {
		case _, ok := <-batchChan:
			if !ok {
				goto channelClosed
			}
		case <-timeout:
			t.Error("expected dequeue channel to be closed within timeout")
			return
		}
	}
channelClosed:

	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got error: %v", err)
	}
}
