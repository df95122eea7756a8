package beatmap

import "errors"

// Sentinel kinds shared by the ranking engines and their stores.
var (
	// ErrDataIntegrity marks persisted ranking data that cannot be trusted.
	ErrDataIntegrity = errors.New("ranking data integrity violation")
	ErrNotFound      = errors.New("beatmap not found")
)
