package color

import (
	"context"

	"github.com/okian/agenda/internal/domain/model"
	"github.com/okian/agenda/pkg/logger"
)

// Resolver decides the display color for each canonical event. Assignment
// prefers stability over novelty: a remembered color wins over a carried
// one, a carried color wins over a fresh allocation. Uniqueness within a
// pass is best effort; a remembered or carried color is kept even when
// another event in the pass already uses it.
type Resolver struct {
	cache     *Cache
	allocator Allocator
	log       logger.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCache replaces the default color cache.
func WithCache(c *Cache) ResolverOption {
	return func(r *Resolver) {
		if c != nil {
			r.cache = c
		}
	}
}

// WithAllocator replaces the default palette allocator.
func WithAllocator(a Allocator) ResolverOption {
	return func(r *Resolver) {
		if a != nil {
			r.allocator = a
		}
	}
}

// WithLogger attaches a logger for allocation diagnostics.
func WithLogger(l logger.Logger) ResolverOption {
	return func(r *Resolver) {
		r.log = l
	}
}

// NewResolver creates a Resolver backed by the default cache and palette.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		cache:     NewCache(),
		allocator: NewPalette(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveColors assigns a color to every event, in the given order. It
// never fails: if the allocator does, affected events get hash-derived
// colors instead.
func (r *Resolver) ResolveColors(ctx context.Context, events []model.CanonicalEvent) map[string]string {
	assigned := make(map[string]string, len(events))
	used := make(map[string]struct{}, len(events))
	var pending []string

	for _, ev := range events {
		if c, ok := r.cache.Get(ev.ID); ok {
			if _, taken := used[c]; !taken {
				assigned[ev.ID] = c
				used[c] = struct{}{}
				continue
			}
		}

		if ev.Color != "" && ValidateColor(ev.Color) {
			if _, taken := used[ev.Color]; !taken {
				assigned[ev.ID] = ev.Color
				used[ev.Color] = struct{}{}
				r.cache.Put(ev.ID, ev.Color)
				continue
			}
		}

		pending = append(pending, ev.ID)
	}

	if len(pending) > 0 {
		fresh, err := r.allocator.AssignColors(ctx, pending, assigned)
		if err != nil {
			if r.log != nil {
				r.log.Warn(ctx, "palette allocation failed, deriving colors",
					logger.Int("pending", len(pending)),
					logger.Error(err))
			}
			fresh = make(map[string]string, len(pending))
			for _, id := range pending {
				fresh[id] = derivedColor(id)
			}
		}
		for id, c := range fresh {
			assigned[id] = c
			r.cache.Put(id, c)
		}
	}

	return assigned
}
