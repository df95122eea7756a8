package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/okian/lets/internal/domain/leaderboard"
	"github.com/okian/lets/internal/domain/model"
)

// Privilege bits a user needs to appear on leaderboards.
const (
	PrivilegePublic = 1 << 0
	PrivilegeNormal = 1 << 1

	allowedMask = PrivilegePublic | PrivilegeNormal
)

// Eligible reports whether the user is neither restricted nor banned.
// Unknown users are not eligible.
func (s *Store) Eligible(ctx context.Context, userID int64) (bool, error) {
	var priv int64
	err := s.db.QueryRowContext(ctx, `SELECT privileges FROM users WHERE id = ?`, userID).Scan(&priv)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query privileges of %d: %w", userID, err)
	}
	return priv&allowedMask == allowedMask, nil
}

// Country returns the stored country code, "" for unknown users.
func (s *Store) Country(ctx context.Context, userID int64) (string, error) {
	var c string
	err := s.db.QueryRowContext(ctx, `SELECT country FROM users WHERE id = ?`, userID).Scan(&c)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query country of %d: %w", userID, err)
	}
	return c, nil
}

// Username returns the display name.
func (s *Store) Username(ctx context.Context, userID int64) (string, bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT username FROM users WHERE id = ?`, userID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query username of %d: %w", userID, err)
	}
	return name, true, nil
}

// Stats returns every user's stored totals for mode and variant, ordered by
// user id.
func (s *Store) Stats(ctx context.Context, mode leaderboard.Mode, variant leaderboard.Variant) ([]model.UserStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, pp, ranked_score FROM users_stats WHERE mode = ? AND relax = ? ORDER BY user_id`,
		int(mode), boolInt(variant == leaderboard.VariantRelax))
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var out []model.UserStats
	for rows.Next() {
		var st model.UserStats
		if err := rows.Scan(&st.UserID, &st.PP, &st.RankedScore); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return out, nil
}
