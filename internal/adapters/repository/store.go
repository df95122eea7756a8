// Package repository holds the leaderboard sorted-set backends.
package repository

import (
	"context"

	"github.com/okian/lets/internal/domain/types"
)

// Entry is one member of a sorted set. Rank is 1-based and descending by
// score; Username is never set by a store.
type Entry = types.Entry

// Store is a collection of named sorted sets of user scores, ordered by
// score descending. Every single-member write is atomic.
type Store interface {
	// Upsert sets the score of member in key. The latest value wins.
	Upsert(ctx context.Context, key string, member int64, score float64) error
	// Rank returns the 1-based rank of member, false if absent.
	Rank(ctx context.Context, key string, member int64) (int, bool, error)
	// Score returns the stored score of member, false if absent.
	Score(ctx context.Context, key string, member int64) (float64, bool, error)
	// At returns the entry at the 0-based descending index, false if out of range.
	At(ctx context.Context, key string, index int) (Entry, bool, error)
	// Remove deletes member from key and reports whether it was present.
	Remove(ctx context.Context, key string, member int64) (bool, error)
	// Count returns the number of members in key.
	Count(ctx context.Context, key string) (int, error)
	// Top returns up to n best entries of key.
	Top(ctx context.Context, key string, n int) ([]Entry, error)
}
