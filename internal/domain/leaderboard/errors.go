package leaderboard

import "errors"

// ErrInvalidArgument rejects malformed caller input before any store access.
var ErrInvalidArgument = errors.New("invalid leaderboard argument")
