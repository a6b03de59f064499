package feedgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/agenda/pkg/logger"
)

// HTTPClient wraps the standard client with the target base URL.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient creates an HTTP client for the feed service.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// submitBatches posts the generated batches to /events using a worker pool.
func (c *HTTPClient) submitBatches(ctx context.Context, batches []wireBatch, workers int, stats *Stats) error {
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan wireBatch, len(batches))
	for _, b := range batches {
		jobs <- b
	}
	close(jobs)

	var accepted, rejected, failed int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				status, err := c.postBatch(ctx, batch)
				switch {
				case err != nil:
					atomic.AddInt64(&failed, 1)
					logger.Get().Warn(ctx, "batch submission failed",
						logger.String("feedId", batch.FeedID),
						logger.Error(err),
					)
				case status == http.StatusAccepted:
					atomic.AddInt64(&accepted, 1)
				case status == http.StatusTooManyRequests:
					atomic.AddInt64(&rejected, 1)
				default:
					atomic.AddInt64(&failed, 1)
					logger.Get().Warn(ctx, "unexpected batch status",
						logger.String("feedId", batch.FeedID),
						logger.Int("status", status),
					)
				}
			}
		}()
	}
	wg.Wait()

	stats.BatchesSubmitted = len(batches)
	stats.BatchesAccepted = int(atomic.LoadInt64(&accepted))
	stats.BatchesRejected = int(atomic.LoadInt64(&rejected))

	if failed > 0 {
		return fmt.Errorf("%d of %d batches failed to submit", failed, len(batches))
	}
	return nil
}

func (c *HTTPClient) postBatch(ctx context.Context, batch wireBatch) (int, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to post batch: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// fetchAgenda reads back the merged agenda to verify resolution took place.
func (c *HTTPClient) fetchAgenda(ctx context.Context, limit int) (int, error) {
	url := fmt.Sprintf("%s/agenda?limit=%d", c.baseURL, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch agenda: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected agenda status: %d", resp.StatusCode)
	}

	var items []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return 0, fmt.Errorf("failed to decode agenda: %w", err)
	}
	return len(items), nil
}
