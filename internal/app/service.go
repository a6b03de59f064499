// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	feedqueue "github.com/okian/agenda/internal/adapters/mq/queue"
	workerpool "github.com/okian/agenda/internal/adapters/mq/worker"
	repository "github.com/okian/agenda/internal/adapters/repository"
	"github.com/okian/agenda/internal/domain/color"
	"github.com/okian/agenda/internal/domain/model"
	"github.com/okian/agenda/internal/domain/resolve"
	"github.com/okian/agenda/internal/domain/tz"
	"github.com/okian/agenda/pkg/logger"
	"github.com/okian/agenda/pkg/metrics"
)

// Service wires the resolution engine, color resolver, timezone
// normalizer, and agenda store behind the feed ingestion pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	engine     *resolve.Engine
	colors     *color.Resolver
	normalizer *tz.Normalizer
	feedQueue  feedqueue.Queue
	workerPool *workerpool.Pool

	// Latest observations per feed, replaced wholesale on refresh.
	// passMu serializes refreshes so applied passes never interleave.
	passMu       sync.Mutex
	obsMu        sync.RWMutex
	observations map[string][]model.CalendarEvent

	// Configuration
	workerCount      int
	queueSize        int
	colorCacheSize   int
	colorCacheTTL    time.Duration
	defaultTimezone  string
	snapshotInterval time.Duration
	allocator        color.Allocator

	// State
	started bool
	stopCh  chan struct{}

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of refresh workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the feed batch queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithColorCacheSize bounds the color assignment cache.
func WithColorCacheSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.colorCacheSize = size
		}
	}
}

// WithColorCacheTTL sets how long color assignments stay fresh.
func WithColorCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.colorCacheTTL = ttl
		}
	}
}

// WithDefaultTimezone sets the viewer zone used when a request names none.
func WithDefaultTimezone(zone string) Option {
	return func(s *Service) {
		if zone != "" {
			s.defaultTimezone = zone
		}
	}
}

// WithSnapshotInterval sets the agenda store snapshot cadence.
func WithSnapshotInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.snapshotInterval = interval
		}
	}
}

// WithAllocator replaces the default palette allocator.
func WithAllocator(a color.Allocator) Option {
	return func(s *Service) {
		if a != nil {
			s.allocator = a
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU() * 2,
		queueSize:        10000,
		colorCacheSize:   4096,
		colorCacheTTL:    30 * time.Minute,
		defaultTimezone:  "UTC",
		snapshotInterval: time.Second,
		observations:     make(map[string][]model.CalendarEvent),
		stopCh:           make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting agenda service...")

	cache := color.NewCache(
		color.WithCacheSize(s.colorCacheSize),
		color.WithCacheTTL(s.colorCacheTTL),
	)
	colorOpts := []color.ResolverOption{
		color.WithCache(cache),
		color.WithLogger(s.logger.Named("color")),
	}
	if s.allocator != nil {
		colorOpts = append(colorOpts, color.WithAllocator(s.allocator))
	}
	s.colors = color.NewResolver(colorOpts...)

	s.engine = resolve.New(resolve.WithColorResolver(s.colors))
	s.normalizer = tz.New(tz.WithLogger(s.logger.Named("tz")))
	s.store = repository.NewAgendaStore(ctx,
		repository.WithSnapshotInterval(s.snapshotInterval),
	)
	s.feedQueue = feedqueue.NewInMemoryQueue(
		feedqueue.WithCapacity(s.queueSize),
	)

	s.workerPool = workerpool.NewPool(s.workerCount, s.feedQueue, s)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "agenda service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.String("defaultTimezone", s.defaultTimezone),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping agenda service...")

	if q, ok := s.feedQueue.(*feedqueue.InMemoryQueue); ok {
		_ = q.Close()
	}

	if s.workerPool != nil {
		s.workerPool.Stop()
	}

	if closer, ok := s.store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	s.started = false
	s.logger.Info(context.Background(), "agenda service stopped")
}

// IngestBatch submits a feed batch for asynchronous processing. Returns
// false when the queue is full and the caller should back off.
func (s *Service) IngestBatch(ctx context.Context, b model.FeedBatch) bool {
	s.logger.Debug(ctx, "received feed batch",
		logger.String("feedID", b.FeedID),
		logger.Int("events", len(b.Events)),
	)
	return s.feedQueue.Enqueue(ctx, b)
}

// Refresh replaces the stored observations for one feed and reruns the
// resolution pass over everything currently known.
func (s *Service) Refresh(ctx context.Context, b model.FeedBatch) error {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	s.obsMu.Lock()
	if len(b.Events) == 0 {
		delete(s.observations, b.FeedID)
	} else {
		s.observations[b.FeedID] = b.Events
	}
	all := s.allObservations()
	s.obsMu.Unlock()

	res, err := s.engine.Resolve(ctx, all)
	if err != nil {
		return err
	}

	return s.store.Apply(ctx, res)
}

// allObservations flattens per-feed observations in feed order. Callers
// hold obsMu.
func (s *Service) allObservations() []model.CalendarEvent {
	feeds := make([]string, 0, len(s.observations))
	total := 0
	for f, evs := range s.observations {
		feeds = append(feeds, f)
		total += len(evs)
	}
	sort.Strings(feeds)

	all := make([]model.CalendarEvent, 0, total)
	for _, f := range feeds {
		all = append(all, s.observations[f]...)
	}
	return all
}

// Resolve runs one synchronous resolution pass over the given events
// without touching stored state.
func (s *Service) Resolve(ctx context.Context, events []model.CalendarEvent) (resolve.Result, error) {
	return s.engine.Resolve(ctx, events)
}

// Agenda returns up to limit upcoming entries with times converted into
// the viewer's zone. An empty zone falls back to the configured default.
func (s *Service) Agenda(ctx context.Context, zone string, limit int) ([]repository.Entry, error) {
	if zone == "" {
		zone = s.defaultTimezone
	}

	entries, err := s.store.Upcoming(ctx, time.Now(), limit)
	if err != nil {
		return nil, err
	}

	for i := range entries {
		entries[i].Event.CalendarEvent = s.normalizer.ConvertToLocalTime(entries[i].Event.CalendarEvent, zone)
	}
	return entries, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":         s.started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"defaultTimezone": s.defaultTimezone,
	}

	if s.started {
		queueLen := s.feedQueue.Len(ctx)
		canonical := s.store.Count(ctx)

		s.obsMu.RLock()
		feeds := len(s.observations)
		s.obsMu.RUnlock()

		stats["queueLength"] = queueLen
		stats["canonicalEvents"] = canonical
		stats["trackedFeeds"] = feeds

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateCanonicalEvents(canonical)
	}

	return stats
}
