// Package types contains common types used across the application
package types

// Entry represents a leaderboard entry
type Entry struct {
	Rank     int     `json:"rank"`
	UserID   int64   `json:"user_id"`
	Username string  `json:"username,omitempty"`
	Score    float64 `json:"score"`
}

// SweepOutcome summarises one beatmap sweep for API callers.
type SweepOutcome struct {
	BeatmapID     int64   `json:"beatmap_id"`
	Found         bool    `json:"found"`
	InFlight      bool    `json:"in_flight,omitempty"`
	CriteriaIDs   []int64 `json:"criteria_ids,omitempty"`
	Outcome       string  `json:"outcome"`
	PreviousLabel string  `json:"previous_status,omitempty"`
	StatusLabel   string  `json:"status,omitempty"`
	Saved         bool    `json:"saved"`
	Wiped         bool    `json:"wiped"`
	Notified      int     `json:"notified"`
}

// UserRefresh reports a re-read of a user's leaderboard facts.
type UserRefresh struct {
	UserID   int64  `json:"user_id"`
	Eligible bool   `json:"eligible"`
	Country  string `json:"country,omitempty"`
	// Removed is set when the user was dropped from every leaderboard.
	Removed bool `json:"removed"`
}

// Rebuild reports a leaderboard replay.
type Rebuild struct {
	Mode  string `json:"mode"`
	Relax bool   `json:"relax"`
	Users int    `json:"users"`
}
