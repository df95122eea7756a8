package criteria

import "github.com/okian/lets/internal/domain/beatmap"

// MatchField names a beatmap attribute a rule can match on.
type MatchField int

// Match fields. The zero value is deliberately invalid.
const (
	MatchBeatmapSetID MatchField = iota + 1
	MatchBeatmapID
	MatchCreatorID
	MatchRanked
)

type fieldSpec struct {
	column string
	get    func(beatmap.Beatmap) int64
}

var matchFields = map[MatchField]fieldSpec{
	MatchBeatmapSetID: {column: "beatmapset_id", get: func(b beatmap.Beatmap) int64 { return b.BeatmapSetID }},
	MatchBeatmapID:    {column: "beatmap_id", get: func(b beatmap.Beatmap) int64 { return b.BeatmapID }},
	MatchCreatorID:    {column: "creator_id", get: func(b beatmap.Beatmap) int64 { return b.CreatorID }},
	MatchRanked:       {column: "ranked", get: func(b beatmap.Beatmap) int64 { return int64(b.RankedStatus) }},
}

// MatchFields lists every known field in column order.
func MatchFields() []MatchField {
	return []MatchField{MatchBeatmapSetID, MatchBeatmapID, MatchCreatorID, MatchRanked}
}

// Column returns the persisted column name of f, or "" if f is unknown.
func (f MatchField) Column() string {
	return matchFields[f].column
}

// Valid reports whether f is a known field.
func (f MatchField) Valid() bool {
	_, ok := matchFields[f]
	return ok
}

// ParseMatchField resolves a persisted column name.
func ParseMatchField(column string) (MatchField, bool) {
	for f, spec := range matchFields {
		if spec.column == column {
			return f, true
		}
	}
	return 0, false
}

func (f MatchField) value(b beatmap.Beatmap) int64 {
	return matchFields[f].get(b)
}
