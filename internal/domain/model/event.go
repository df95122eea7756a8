// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/lets/internal/domain/leaderboard"
)

// ScoreEvent is a processed score submission. The submitting server already
// computed the user's new totals; this layer only ranks them.
type ScoreEvent struct {
	ScoreID     string // unique id for idempotency
	UserID      int64
	Mode        leaderboard.Mode
	Relax       bool
	PP          float64 // user's total pp after the score
	RankedScore int64   // user's total ranked score after the score
	TS          time.Time
}

// Variant returns the leaderboard partition the event belongs to.
func (e ScoreEvent) Variant() leaderboard.Variant {
	return leaderboard.VariantOf(e.Relax)
}

// Validate rejects events that can never be ranked.
func (e ScoreEvent) Validate() error {
	switch {
	case e.ScoreID == "":
		return fmt.Errorf("%w: missing score id", leaderboard.ErrInvalidArgument)
	case e.UserID <= 0:
		return fmt.Errorf("%w: user id %d", leaderboard.ErrInvalidArgument, e.UserID)
	case !e.Mode.Valid():
		return fmt.Errorf("%w: mode %d", leaderboard.ErrInvalidArgument, int(e.Mode))
	case math.IsNaN(e.PP) || math.IsInf(e.PP, 0) || e.PP < 0:
		return fmt.Errorf("%w: pp %v", leaderboard.ErrInvalidArgument, e.PP)
	case e.RankedScore < 0:
		return fmt.Errorf("%w: ranked score %d", leaderboard.ErrInvalidArgument, e.RankedScore)
	}
	return nil
}

// UserStats are a user's stored totals for one mode and variant.
type UserStats struct {
	UserID      int64
	PP          float64
	RankedScore int64
}
