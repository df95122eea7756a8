package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/okian/lets/internal/domain/beatmap"
	"github.com/okian/lets/pkg/logger"
)

const beatmapColumns = `beatmap_id, beatmapset_id, beatmap_md5, creator_id, song_name, artist, title,
	difficulty_name, display_title, ranked, ranked_status_frozen, ranked_status_freezed, update_date`

// Beatmap loads one difficulty. Missing rows yield beatmap.ErrNotFound.
func (s *Store) Beatmap(ctx context.Context, beatmapID int64) (beatmap.Beatmap, error) {
	var (
		bm             beatmap.Beatmap
		status, frozen int
		freezed        int
	)
	err := s.db.QueryRowContext(ctx, `SELECT `+beatmapColumns+` FROM beatmaps WHERE beatmap_id = ?`, beatmapID).Scan(
		&bm.BeatmapID, &bm.BeatmapSetID, &bm.FileMD5, &bm.CreatorID, &bm.SongName, &bm.Artist, &bm.Title,
		&bm.DifficultyName, &bm.DisplayTitle, &status, &frozen, &freezed, &bm.UpdateDate,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return beatmap.Beatmap{}, fmt.Errorf("%w: %d", beatmap.ErrNotFound, beatmapID)
	}
	if err != nil {
		return beatmap.Beatmap{}, integrity(fmt.Sprintf("scan beatmap %d", beatmapID), err)
	}
	bm.RankedStatus = beatmap.Status(status)
	bm.RankedStatusFrozen = beatmap.Frozen(frozen)
	bm.StatusFreezed = freezed != 0
	return bm, nil
}

// SaveBeatmap persists the ranking fields of bm. With releaseFreeze the
// legacy ranked_status_freezed column is cleared in the same statement; the
// tri-state ranked_status_frozen is always written as given.
func (s *Store) SaveBeatmap(ctx context.Context, bm beatmap.Beatmap, releaseFreeze bool) error {
	q := `UPDATE beatmaps SET ranked = ?, ranked_status_frozen = ?, display_title = ?, update_date = ?`
	if releaseFreeze {
		q += `, ranked_status_freezed = 0`
	}
	q += ` WHERE beatmap_id = ?`

	res, err := s.db.ExecContext(ctx, q,
		int(bm.RankedStatus), int(bm.RankedStatusFrozen), bm.DisplayTitle, bm.UpdateDate, bm.BeatmapID)
	if err != nil {
		return fmt.Errorf("save beatmap %d: %w", bm.BeatmapID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save beatmap %d: %w", bm.BeatmapID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", beatmap.ErrNotFound, bm.BeatmapID)
	}
	return nil
}

// SweepCandidates lists beatmaps autorank may act on: not pinned by a human,
// flagged valid, and mapped by an active opt-in.
func (s *Store) SweepCandidates(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.beatmap_id
		FROM beatmaps b
		JOIN autorank_flags f ON f.beatmap_id = b.beatmap_id AND f.flag_valid = 1
		JOIN autorank_users u ON u.bancho_id = b.creator_id AND u.active = 1
		WHERE b.ranked_status_frozen IN (0, 3)
		ORDER BY b.update_date ASC, b.beatmap_id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sweep candidates: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan sweep candidate: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sweep candidates: %w", err)
	}
	return ids, nil
}

// ClearLeaderboard deletes every score set on the beatmap's current file.
func (s *Store) ClearLeaderboard(ctx context.Context, beatmapID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scores WHERE beatmap_md5 =
		(SELECT beatmap_md5 FROM beatmaps WHERE beatmap_id = ?)`, beatmapID)
	if err != nil {
		return fmt.Errorf("clear leaderboard of %d: %w", beatmapID, err)
	}
	n, _ := res.RowsAffected()
	s.logger.Info(ctx, "beatmap leaderboard cleared",
		logger.Int64("beatmap_id", beatmapID), logger.Int64("scores", n))
	return nil
}
