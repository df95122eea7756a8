package queue

import "errors"

// Sentinel rejection kinds, also used as metric reasons.
var (
	ErrClosed = errors.New("queue closed")
	ErrFull   = errors.New("queue full")
)
