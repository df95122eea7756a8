package repository

import "errors"

// Sentinel kinds for leaderboard store errors.
var (
	ErrInvalidKey   = errors.New("invalid leaderboard key")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	ErrInvalidScore = errors.New("invalid leaderboard score")
)
