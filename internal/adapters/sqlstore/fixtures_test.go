package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/okian/lets/internal/domain/autorank"
	"github.com/okian/lets/internal/domain/beatmap"
	"github.com/okian/lets/internal/domain/criteria"
	"github.com/okian/lets/internal/domain/leaderboard"
	"github.com/okian/lets/internal/domain/model"
)

// Writers for tables the ranking core only reads or clears.

// User is a row of the users table.
type User struct {
	ID         int64
	Username   string
	Privileges int64
	Country    string
}

// PutBeatmap inserts or fully replaces a beatmap row.
func (s *Store) PutBeatmap(ctx context.Context, bm beatmap.Beatmap) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO beatmaps (`+beatmapColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (beatmap_id) DO UPDATE SET
			beatmapset_id = excluded.beatmapset_id, beatmap_md5 = excluded.beatmap_md5,
			creator_id = excluded.creator_id, song_name = excluded.song_name, artist = excluded.artist,
			title = excluded.title, difficulty_name = excluded.difficulty_name,
			display_title = excluded.display_title, ranked = excluded.ranked,
			ranked_status_frozen = excluded.ranked_status_frozen,
			ranked_status_freezed = excluded.ranked_status_freezed, update_date = excluded.update_date`,
		bm.BeatmapID, bm.BeatmapSetID, bm.FileMD5, bm.CreatorID, bm.SongName, bm.Artist, bm.Title,
		bm.DifficultyName, bm.DisplayTitle, int(bm.RankedStatus), int(bm.RankedStatusFrozen),
		boolInt(bm.StatusFreezed), bm.UpdateDate,
	)
	if err != nil {
		return fmt.Errorf("put beatmap %d: %w", bm.BeatmapID, err)
	}
	return nil
}

// InsertScore stores a play on a beatmap file.
func (s *Store) InsertScore(ctx context.Context, md5 string, userID int64, mode int, relax bool, score int64, pp float64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scores (beatmap_md5, user_id, play_mode, relax, score, pp) VALUES (?, ?, ?, ?, ?, ?)`,
		md5, userID, mode, boolInt(relax), score, pp)
	if err != nil {
		return 0, fmt.Errorf("insert score: %w", err)
	}
	return res.LastInsertId()
}

// CountScores returns the number of scores on a beatmap file.
func (s *Store) CountScores(ctx context.Context, md5 string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scores WHERE beatmap_md5 = ?`, md5).Scan(&n); err != nil {
		return 0, fmt.Errorf("count scores: %w", err)
	}
	return n, nil
}

// CreateRule stores a rule with its actions and returns the new rule id.
func (s *Store) CreateRule(ctx context.Context, r criteria.Rule, actions []criteria.Action) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	match := func(f criteria.MatchField) sql.NullInt64 {
		v, ok := r.Match[f]
		return sql.NullInt64{Int64: v, Valid: ok}
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO beatmaps_criteria_control
		(priority, active, beatmapset_id, beatmap_id, creator_id, ranked, stop_on_hit)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Priority, boolInt(r.Active),
		match(criteria.MatchBeatmapSetID), match(criteria.MatchBeatmapID),
		match(criteria.MatchCreatorID), match(criteria.MatchRanked),
		boolInt(r.StopOnHit),
	)
	if err != nil {
		return 0, fmt.Errorf("insert criteria: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("criteria id: %w", err)
	}

	for _, a := range actions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO beatmaps_criteria_actions (criteria_id, type, int_value, str_value) VALUES (?, ?, ?, ?)`,
			id, int64(a.Type), a.IntValue, a.StrValue,
		); err != nil {
			return 0, fmt.Errorf("insert criteria action: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit criteria: %w", err)
	}
	return id, nil
}

// SetProfile creates or replaces a mapper opt-in.
func (s *Store) SetProfile(ctx context.Context, p autorank.Profile) error {
	var userID sql.NullInt64
	if p.UserID > 0 {
		userID = sql.NullInt64{Int64: p.UserID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO autorank_users (bancho_id, datenshi_id, active) VALUES (?, ?, ?)
		ON CONFLICT (bancho_id) DO UPDATE SET datenshi_id = excluded.datenshi_id, active = excluded.active`,
		p.BanchoID, userID, boolInt(p.Active))
	if err != nil {
		return fmt.Errorf("upsert autorank user %d: %w", p.BanchoID, err)
	}
	return nil
}

// SetFlags creates or replaces the autorank flags of a beatmap.
func (s *Store) SetFlags(ctx context.Context, beatmapID int64, f autorank.Flags) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO autorank_flags (beatmap_id, flag_valid, flag_lovable) VALUES (?, ?, ?)
		ON CONFLICT (beatmap_id) DO UPDATE SET flag_valid = excluded.flag_valid, flag_lovable = excluded.flag_lovable`,
		beatmapID, boolInt(f.Valid), boolInt(f.Lovable))
	if err != nil {
		return fmt.Errorf("upsert autorank flags %d: %w", beatmapID, err)
	}
	return nil
}

// PutUser inserts or replaces a user.
func (s *Store) PutUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, username, privileges, country) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET username = excluded.username,
			privileges = excluded.privileges, country = excluded.country`,
		u.ID, u.Username, u.Privileges, u.Country)
	if err != nil {
		return fmt.Errorf("put user %d: %w", u.ID, err)
	}
	return nil
}

// PutStats stores a user's totals for one mode and variant.
func (s *Store) PutStats(ctx context.Context, mode leaderboard.Mode, variant leaderboard.Variant, st model.UserStats) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users_stats (user_id, mode, relax, pp, ranked_score) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, mode, relax) DO UPDATE SET pp = excluded.pp, ranked_score = excluded.ranked_score`,
		st.UserID, int(mode), boolInt(variant == leaderboard.VariantRelax), st.PP, st.RankedScore)
	if err != nil {
		return fmt.Errorf("put stats of %d: %w", st.UserID, err)
	}
	return nil
}
