// Package users caches the user lookups the leaderboards make on every score.
package users

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"
	"github.com/okian/lets/internal/domain/leaderboard"
	"github.com/okian/lets/pkg/metrics"
)

type username struct {
	name string
	ok   bool
}

// Cached decorates a leaderboard.UserDirectory with bounded TTL caches for
// country and username. Eligibility is always read through so a restriction
// takes effect on the next score. Lookup errors are never cached.
type Cached struct {
	next leaderboard.UserDirectory

	maxSize int
	ttl     time.Duration

	countries otter.Cache[int64, string]
	names     otter.Cache[int64, username]
}

var _ leaderboard.UserDirectory = (*Cached)(nil)

// Option configures a Cached directory.
type Option func(*Cached)

// WithMaxSize bounds each cache to n users.
func WithMaxSize(n int) Option {
	return func(c *Cached) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithTTL sets how long a lookup result is reused.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cached) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// NewCached wraps next.
func NewCached(next leaderboard.UserDirectory, opts ...Option) (*Cached, error) {
	c := &Cached{next: next, maxSize: 50_000, ttl: 5 * time.Minute}
	for _, opt := range opts {
		opt(c)
	}

	var err error
	if c.countries, err = build[string](c.maxSize, c.ttl); err != nil {
		return nil, fmt.Errorf("build country cache: %w", err)
	}
	if c.names, err = build[username](c.maxSize, c.ttl); err != nil {
		c.countries.Close()
		return nil, fmt.Errorf("build username cache: %w", err)
	}
	return c, nil
}

func build[V any](n int, ttl time.Duration) (otter.Cache[int64, V], error) {
	return otter.MustBuilder[int64, V](n).
		Cost(func(int64, V) uint32 { return 1 }).
		WithTTL(ttl).
		Build()
}

// Eligible implements leaderboard.UserDirectory. It is never cached.
func (c *Cached) Eligible(ctx context.Context, userID int64) (bool, error) {
	return c.next.Eligible(ctx, userID)
}

// Country implements leaderboard.UserDirectory.
func (c *Cached) Country(ctx context.Context, userID int64) (string, error) {
	if v, ok := c.countries.Get(userID); ok {
		metrics.RecordUsersCacheLookup("country", true)
		return v, nil
	}
	metrics.RecordUsersCacheLookup("country", false)
	v, err := c.next.Country(ctx, userID)
	if err != nil {
		return "", err
	}
	c.countries.Set(userID, v)
	return v, nil
}

// Username implements leaderboard.UserDirectory.
func (c *Cached) Username(ctx context.Context, userID int64) (string, bool, error) {
	if v, ok := c.names.Get(userID); ok {
		metrics.RecordUsersCacheLookup("username", true)
		return v.name, v.ok, nil
	}
	metrics.RecordUsersCacheLookup("username", false)
	name, ok, err := c.next.Username(ctx, userID)
	if err != nil {
		return "", false, err
	}
	c.names.Set(userID, username{name: name, ok: ok})
	return name, ok, nil
}

// Invalidate drops the cached country and username of the user.
func (c *Cached) Invalidate(userID int64) {
	c.countries.Delete(userID)
	c.names.Delete(userID)
}

// Close stops the caches' background goroutines.
func (c *Cached) Close() {
	c.countries.Close()
	c.names.Close()
}
