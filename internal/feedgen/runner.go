package feedgen

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/okian/agenda/pkg/logger"
)

// Delay between submission and agenda readback to let workers drain the queue.
const processingDelay = 2 * time.Second

// Run executes the complete feed ingestion test.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{}
	start := time.Now()

	logger.Get().Info(ctx, "starting agenda feed test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("feeds", config.Feeds),
		logger.Int("eventsPerFeed", config.EventsPerFeed),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Any("verbose", config.Verbose))

	client := NewHTTPClient(config.BaseURL, config.Timeout)

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate feed batches
	batches := generateFeeds(ctx, config, stats)

	// Step 3: Submit batches concurrently
	if err := client.submitBatches(ctx, batches, config.Workers, stats); err != nil {
		return fmt.Errorf("batch submission failed: %w", err)
	}

	// Step 4: Wait for the worker pool to resolve the feeds
	logger.Get().Info(ctx, "waiting for feeds to be resolved")
	time.Sleep(processingDelay)

	// Step 5: Read the merged agenda back
	entries, err := client.fetchAgenda(ctx, config.AgendaLimit)
	if err != nil {
		return fmt.Errorf("agenda retrieval failed: %w", err)
	}
	stats.AgendaEntries = entries

	displayFinalStats(stats, time.Since(start))

	logger.Get().Info(ctx, "test completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	logger.Get().Info(ctx, "checking service health")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()

	// Accept any 200 response as healthy (the endpoint serves Prometheus metrics)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// displayFinalStats prints the final test statistics.
func displayFinalStats(stats *Stats, elapsed time.Duration) {
	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("batchesSubmitted", stats.BatchesSubmitted),
		logger.Int("batchesAccepted", stats.BatchesAccepted),
		logger.Int("batchesRejected", stats.BatchesRejected),
		logger.Int("agendaEntries", stats.AgendaEntries),
		logger.String("duration", elapsed.String()),
	)
}

// ShowHelp prints usage information for the feed test tool.
func ShowHelp() {
	os.Stdout.WriteString(`Agenda Feed Test Tool
=====================

A concurrent tool for exercising the agenda feed ingestion service.

Usage:
  go run cmd/feedgen/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -feeds int
        Number of calendar feeds to generate (default 20)
  -events int
        Number of events per feed (default 200)
  -mirror float
        Fraction of events mirrored into another feed (default 0.3)
  -stale float
        Fraction of mirrored events carrying a stale sequence (default 0.2)
  -friend float
        Fraction of feeds belonging to friends (default 0.25)
  -workers int
        Number of concurrent submission workers (default 8)
  -timeout duration
        HTTP request timeout (default 30s)
  -limit int
        Agenda page size used for the readback check (default 200)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Quick smoke test
  go run cmd/feedgen/main.go -feeds 5 -events 20

  # Heavier duplicate load
  go run cmd/feedgen/main.go -feeds 50 -events 500 -mirror 0.5
`)
}
