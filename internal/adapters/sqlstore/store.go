package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/okian/lets/internal/domain/beatmap"
	"github.com/okian/lets/pkg/logger"
)

// Store implements the ranking, autorank and user lookups over one database.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New wraps an open, migrated database.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// integrity marks a scan failure on persisted ranking data.
func integrity(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", beatmap.ErrDataIntegrity, what, err)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
