package repository

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/agenda/internal/domain/model"
	"github.com/okian/agenda/internal/domain/resolve"
	"github.com/okian/agenda/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: start time ASC, then canonical id ASC (deterministic).
// In-order traversal yields the agenda from soonest to latest, so
// Upcoming is a bounded in-order walk starting at the requested instant.

// record holds one stored canonical event plus its display color.
type record struct {
	ev    model.CanonicalEvent
	color string
}

// Snapshot is an immutable view of the agenda, republished periodically
// for lock-free readers.
type Snapshot struct {
	// Ordered holds every entry in agenda order.
	Ordered []Entry

	// ColorByID resolves a canonical id to its display color in O(1).
	ColorByID map[string]string
}

// treap node
type node struct {
	id        string
	startNano int64
	prio      uint64
	left      *node
	right     *node
	size      int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aStart, aID) should appear before (bStart, bID)
// in the agenda (earlier events first).
func less(aStart int64, aID string, bStart int64, bID string) bool {
	if aStart != bStart {
		return aStart < bStart
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

// idPriority hashes the canonical id into a heap priority. Hashing keeps
// the treap balanced in expectation without a random source, so rebuilds
// of the same pass produce the same tree.
func idPriority(id string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64()
}

func insert(n *node, id string, startNano int64) *node {
	if n == nil {
		return &node{id: id, startNano: startNano, prio: idPriority(id), size: 1}
	}
	if less(startNano, id, n.startNano, n.id) {
		n.left = insert(n.left, id, startNano)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, startNano)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

// collectFrom appends up to limit entries whose start is at or after
// fromNano, in agenda order.
func collectFrom(n *node, fromNano int64, limit int, records map[string]record, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}

	// Subtrees entirely before the cutoff can be skipped.
	if n.startNano >= fromNano {
		collectFrom(n.left, fromNano, limit, records, out)
	}

	if len(*out) < limit && n.startNano >= fromNano {
		if rec, exists := records[n.id]; exists {
			*out = append(*out, Entry{Event: rec.ev, Color: rec.color})
		}
	}

	if len(*out) < limit {
		collectFrom(n.right, fromNano, limit, records, out)
	}
}

// collectAll appends every entry in agenda order.
func collectAll(n *node, records map[string]record, out *[]Entry) {
	if n == nil {
		return
	}
	collectAll(n.left, records, out)
	if rec, ok := records[n.id]; ok {
		*out = append(*out, Entry{Event: rec.ev, Color: rec.color})
	}
	collectAll(n.right, records, out)
}

// AgendaStore is the treap-backed Store.
type AgendaStore struct {
	mu               sync.RWMutex
	root             *node
	byID             map[string]record
	snapshotInterval time.Duration

	snapshot atomic.Pointer[Snapshot]

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewAgendaStore constructs an agenda store with configuration options.
func NewAgendaStore(ctx context.Context, opts ...Option) *AgendaStore {
	s := &AgendaStore{
		snapshotInterval: 1 * time.Second,
		byID:             make(map[string]record),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.stopChan = make(chan struct{})
	s.startPeriodicSnapshots(ctx)

	metrics.UpdateStoreRecords(0)

	return s
}

// startPeriodicSnapshots republishes the read snapshot at the configured
// interval.
func (s *AgendaStore) startPeriodicSnapshots(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.snapshotInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.publishSnapshot()
			}
		}
	}()
}

func (s *AgendaStore) publishSnapshot() {
	start := time.Now()
	s.mu.RLock()
	s.publishSnapshotInternal()
	s.mu.RUnlock()

	metrics.RecordStoreSnapshotRebuildDuration(float64(time.Since(start).Milliseconds()))
	metrics.UpdateStoreSnapshotLastUnix(float64(time.Now().Unix()))
}

// publishSnapshotInternal rebuilds the snapshot. Callers hold at least a
// read lock.
func (s *AgendaStore) publishSnapshotInternal() {
	ordered := make([]Entry, 0, len(s.byID))
	collectAll(s.root, s.byID, &ordered)

	colorByID := make(map[string]string, len(s.byID))
	for id, rec := range s.byID {
		colorByID[id] = rec.color
	}

	s.snapshot.Store(&Snapshot{Ordered: ordered, ColorByID: colorByID})
}

// Snapshot returns the last published read snapshot, or nil before the
// first publish.
func (s *AgendaStore) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Close gracefully shuts down the snapshot goroutine.
func (s *AgendaStore) Close() error {
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
	return nil
}

// Apply implements Store.Apply. The previous pass is discarded wholesale;
// a resolution pass always describes the complete agenda.
func (s *AgendaStore) Apply(ctx context.Context, res resolve.Result) error {
	byID := make(map[string]record, len(res.CanonicalEvents))
	var root *node
	for id, ev := range res.CanonicalEvents {
		byID[id] = record{ev: ev, color: res.ColorAssignments[id]}
		root = insert(root, id, ev.StartTime.UnixNano())
	}

	s.mu.Lock()
	s.root = root
	s.byID = byID
	s.publishSnapshotInternal()
	s.mu.Unlock()

	metrics.UpdateStoreRecords(len(byID))
	return nil
}

// Get returns the entry for a canonical event id in O(1).
func (s *AgendaStore) Get(ctx context.Context, canonicalID string) (Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[canonicalID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return Entry{}, ErrNotFound
	}
	return Entry{Event: rec.ev, Color: rec.color}, nil
}

// Upcoming returns up to n entries starting at or after from.
func (s *AgendaStore) Upcoming(ctx context.Context, from time.Time, n int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, n)
	collectFrom(s.root, from.UnixNano(), n, s.byID, &out)
	return out, nil
}

// Count returns the total number of canonical events.
func (s *AgendaStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
