// Package dedupe tracks recently seen submission IDs for idempotency.
package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"
)

// Deduper records seen IDs to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a submission that could not be enqueued can be
	// retried by the client.
	Unrecord(ctx context.Context, id string)

	// Size is approximate; the cache applies writes asynchronously.
	Size() int

	Close()
}

// cacheDeduper keeps IDs in a bounded otter cache. Old IDs fall out by
// TTL or by the cache's eviction policy once it is full.
type cacheDeduper struct {
	maxSize int
	ttl     time.Duration
	cache   otter.Cache[string, struct{}]
}

// NewDeduper creates a cache-backed deduper.
func NewDeduper(opts ...Option) (Deduper, error) {
	d := &cacheDeduper{
		maxSize: 500_000,
		ttl:     time.Hour,
	}
	for _, opt := range opts {
		opt(d)
	}

	cache, err := otter.MustBuilder[string, struct{}](d.maxSize).
		Cost(func(_ string, _ struct{}) uint32 { return 1 }).
		WithTTL(d.ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build dedupe cache: %w", err)
	}
	d.cache = cache
	return d, nil
}

func (d *cacheDeduper) SeenAndRecord(_ context.Context, id string) bool {
	return !d.cache.SetIfAbsent(id, struct{}{})
}

func (d *cacheDeduper) Unrecord(_ context.Context, id string) {
	d.cache.Delete(id)
}

func (d *cacheDeduper) Size() int {
	return d.cache.Size()
}

func (d *cacheDeduper) Close() {
	d.cache.Close()
}
