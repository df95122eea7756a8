// Package beatmap holds the beatmap snapshot shared by the ranking engines.
package beatmap

// Status is a beatmap ranked status code.
type Status int

// Ranked status codes as stored in the beatmaps table.
const (
	StatusVoid         Status = -2
	StatusNotSubmitted Status = -1
	StatusPending      Status = 0
	StatusNeedUpdate   Status = 1
	StatusRanked       Status = 2
	StatusApproved     Status = 3
	StatusQualified    Status = 4
	StatusLoved        Status = 5
)

var statusLabels = [...]string{"disqualified", "update", "ranked", "approved", "qualified", "loved"}

// Label returns the announcement label of s. Negative codes render as "void".
func (s Status) Label() string {
	if s < 0 {
		return "void"
	}
	if int(s) >= len(statusLabels) {
		return "unknown"
	}
	return statusLabels[s]
}

func (s Status) String() string { return s.Label() }

// Frozen is the tri-state ranked_status_frozen flag.
//
//	0: managed automatically
//	3: pinned by autorank
//	anything else: pinned by a human
type Frozen int

const (
	Unfrozen       Frozen = 0
	FrozenByHuman  Frozen = 1
	FrozenAutorank Frozen = 3
)

// Truthy reports whether any freeze is set.
func (f Frozen) Truthy() bool { return f != 0 }

// AutoManaged reports whether sweeps may touch the beatmap at all.
func (f Frozen) AutoManaged() bool { return f == Unfrozen || f == FrozenAutorank }

// Beatmap is a point-in-time snapshot of one difficulty.
//
// RankedStatusFrozen and StatusFreezed are two distinct persisted columns. The
// first drives autorank, the second is the legacy boolean honoured by the
// beatmap cache refresher. They are reconciled by the repository when a sweep
// transition is committed, never assumed equal.
type Beatmap struct {
	BeatmapID    int64
	BeatmapSetID int64
	CreatorID    int64
	FileMD5      string

	RankedStatus       Status
	RankedStatusFrozen Frozen
	StatusFreezed      bool

	DisplayTitle string
	// UpdateDate is the Unix time of the last upstream edit; 0 means unknown.
	UpdateDate int64

	SongName       string
	Artist         string
	Title          string
	DifficultyName string
}

// Equal reports whether every mutable ranking field matches.
func (b Beatmap) Equal(o Beatmap) bool {
	return b == o
}
