package criteria

import "github.com/okian/lets/internal/domain/beatmap"

// ActionType selects what an action does to a matching beatmap.
type ActionType int

// Known action types. Unknown types are ignored by the engine.
const (
	ActionNoop            ActionType = 0
	ActionSetStatus       ActionType = 1
	ActionSetFrozen       ActionType = 2
	ActionSetDisplayTitle ActionType = 3
)

// Action is one stored effect of a rule.
type Action struct {
	Type     ActionType
	IntValue int64
	StrValue string
}

// ActionFunc applies an action value to a beatmap and returns the result.
type ActionFunc func(bm beatmap.Beatmap, iv int64, sv string) beatmap.Beatmap

// ActionTable dispatches action types to their functions.
type ActionTable map[ActionType]ActionFunc

// DefaultActions returns the built-in action table.
func DefaultActions() ActionTable {
	return ActionTable{
		ActionNoop:            func(bm beatmap.Beatmap, _ int64, _ string) beatmap.Beatmap { return bm },
		ActionSetStatus:       setStatus,
		ActionSetFrozen:       setFrozen,
		ActionSetDisplayTitle: setDisplayTitle,
	}
}

// setStatus never overrides a frozen beatmap.
func setStatus(bm beatmap.Beatmap, iv int64, _ string) beatmap.Beatmap {
	if bm.RankedStatusFrozen.Truthy() {
		return bm
	}
	if int64(bm.RankedStatus) == iv {
		return bm
	}
	bm.RankedStatus = beatmap.Status(iv)
	return bm
}

// setFrozen only flips truthiness; 1 -> 3 keeps the existing value.
func setFrozen(bm beatmap.Beatmap, iv int64, _ string) beatmap.Beatmap {
	if int64(bm.RankedStatusFrozen) == iv {
		return bm
	}
	if bm.RankedStatusFrozen.Truthy() == (iv != 0) {
		return bm
	}
	bm.RankedStatusFrozen = beatmap.Frozen(iv)
	return bm
}

func setDisplayTitle(bm beatmap.Beatmap, _ int64, sv string) beatmap.Beatmap {
	if bm.DisplayTitle == sv {
		return bm
	}
	bm.DisplayTitle = sv
	return bm
}
