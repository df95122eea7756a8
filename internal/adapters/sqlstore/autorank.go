package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/okian/lets/internal/domain/autorank"
)

// Profile implements autorank.ProfileSource.
func (s *Store) Profile(ctx context.Context, banchoID int64) (autorank.Profile, bool, error) {
	var (
		p      = autorank.Profile{BanchoID: banchoID}
		userID sql.NullInt64
		active int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT datenshi_id, active FROM autorank_users WHERE bancho_id = ?`, banchoID,
	).Scan(&userID, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return autorank.Profile{}, false, nil
	}
	if err != nil {
		return autorank.Profile{}, false, fmt.Errorf("query autorank user %d: %w", banchoID, err)
	}
	p.UserID = userID.Int64
	p.Active = active != 0
	return p, true, nil
}

// Flags implements autorank.ProfileSource.
func (s *Store) Flags(ctx context.Context, beatmapID int64) (autorank.Flags, bool, error) {
	var valid, lovable int
	err := s.db.QueryRowContext(ctx,
		`SELECT flag_valid, flag_lovable FROM autorank_flags WHERE beatmap_id = ?`, beatmapID,
	).Scan(&valid, &lovable)
	if errors.Is(err, sql.ErrNoRows) {
		return autorank.Flags{}, false, nil
	}
	if err != nil {
		return autorank.Flags{}, false, fmt.Errorf("query autorank flags %d: %w", beatmapID, err)
	}
	return autorank.Flags{Valid: valid != 0, Lovable: lovable != 0}, true, nil
}
