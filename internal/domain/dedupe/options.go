package dedupe

import "time"

// Option applies a configuration option to the deduper.
type Option func(*cacheDeduper)

// WithMaxSize sets the maximum number of IDs kept in memory.
func WithMaxSize(maxSize int) Option {
	return func(d *cacheDeduper) {
		if maxSize > 0 {
			d.maxSize = maxSize
		}
	}
}

// WithTTL sets how long an ID is remembered.
func WithTTL(ttl time.Duration) Option {
	return func(d *cacheDeduper) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}
