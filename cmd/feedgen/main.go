package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/agenda/internal/feedgen"
	"github.com/okian/agenda/pkg/logger"
)

// Default configuration constants.
const (
	defaultFeeds       = 20
	defaultEvents      = 200
	defaultMirror      = 0.3
	defaultStale       = 0.2
	defaultFriend      = 0.25
	defaultWorkers     = 8
	defaultTimeout     = 30 * time.Second
	defaultAgendaLimit = 200
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:9080", "Base URL of the service")
		feeds   = flag.Int("feeds", defaultFeeds, "Number of calendar feeds to generate")
		events  = flag.Int("events", defaultEvents, "Number of events per feed")
		mirror  = flag.Float64("mirror", defaultMirror, "Fraction of events mirrored into another feed")
		stale   = flag.Float64("stale", defaultStale, "Fraction of mirrored events with a stale sequence")
		friend  = flag.Float64("friend", defaultFriend, "Fraction of feeds belonging to friends")
		workers = flag.Int("workers", defaultWorkers, "Number of concurrent submission workers")
		timeout = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		limit   = flag.Int("limit", defaultAgendaLimit, "Agenda page size for the readback check")
		verbose = flag.Bool("verbose", false, "Enable verbose logging")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		feedgen.ShowHelp()
		return
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("Failed to initialize logging: " + err.Error() + "\n")
		return
	}
	if *verbose {
		if err := logger.SetLevelString("debug"); err != nil {
			os.Stderr.WriteString("Failed to set log level: " + err.Error() + "\n")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	config := &feedgen.Config{
		BaseURL:       *baseURL,
		Feeds:         *feeds,
		EventsPerFeed: *events,
		MirrorRatio:   *mirror,
		StaleRatio:    *stale,
		FriendRatio:   *friend,
		Workers:       *workers,
		Timeout:       *timeout,
		AgendaLimit:   *limit,
		Verbose:       *verbose,
	}

	if err := feedgen.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Test failed: " + err.Error() + "\n")
		return
	}
}
