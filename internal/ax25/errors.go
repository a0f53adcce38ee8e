package ax25

import "errors"

// Frames arriving from a transport that fail to decode are logged at DEBUG
// by the caller and dropped; these sentinels let callers distinguish the
// cases with errors.Is.
var (
	ErrTruncatedFrame  = errors.New("ax25: truncated frame")
	ErrInvalidLayout   = errors.New("ax25: invalid frame layout")
	ErrUnknownModifier = errors.New("ax25: unknown U-frame modifier")
)
