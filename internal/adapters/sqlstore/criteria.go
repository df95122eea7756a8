package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/okian/lets/internal/domain/beatmap"
	"github.com/okian/lets/internal/domain/criteria"
)

const activeRulesQuery = `
SELECT criteria_id, priority, active, beatmapset_id, beatmap_id, creator_id, ranked, stop_on_hit
FROM beatmaps_criteria_control
WHERE active = 1
ORDER BY priority DESC, criteria_id ASC`

// ActiveRules implements criteria.RuleSource.
func (s *Store) ActiveRules(ctx context.Context) ([]criteria.Rule, error) {
	rows, err := s.db.QueryContext(ctx, activeRulesQuery)
	if err != nil {
		return nil, fmt.Errorf("query criteria: %w", err)
	}
	defer rows.Close()

	var out []criteria.Rule
	for rows.Next() {
		var (
			r                           criteria.Rule
			active, stop                int
			setID, mapID, creator, rank sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Priority, &active, &setID, &mapID, &creator, &rank, &stop); err != nil {
			return nil, integrity("scan criteria row", err)
		}
		r.Active = active != 0
		r.StopOnHit = stop != 0
		r.Match = make(map[criteria.MatchField]int64, 4)
		for f, v := range map[criteria.MatchField]sql.NullInt64{
			criteria.MatchBeatmapSetID: setID,
			criteria.MatchBeatmapID:    mapID,
			criteria.MatchCreatorID:    creator,
			criteria.MatchRanked:       rank,
		} {
			if v.Valid {
				r.Match[f] = v.Int64
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate criteria: %w", err)
	}
	return out, nil
}

// Actions implements criteria.RuleSource. Actions keep their stored order.
func (s *Store) Actions(ctx context.Context, ids []int64) (map[int64][]criteria.Action, error) {
	out := make(map[int64][]criteria.Action, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := `SELECT criteria_id, type, int_value, str_value FROM beatmaps_criteria_actions
		WHERE criteria_id IN (` + placeholders(len(ids)) + `) ORDER BY criteria_id, action_id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query criteria actions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  int64
			typ sql.NullInt64
			iv  sql.NullInt64
			sv  sql.NullString
		)
		if err := rows.Scan(&id, &typ, &iv, &sv); err != nil {
			return nil, integrity("scan criteria action", err)
		}
		if !typ.Valid {
			return nil, fmt.Errorf("%w: action of criteria %d has no type", beatmap.ErrDataIntegrity, id)
		}
		out[id] = append(out[id], criteria.Action{
			Type:     criteria.ActionType(typ.Int64),
			IntValue: iv.Int64,
			StrValue: sv.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate criteria actions: %w", err)
	}
	return out, nil
}
