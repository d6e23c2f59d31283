package game

import "errors"

// Errors for session operations.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionActive   = errors.New("a session is already active for this phone number")
	ErrNotPlaying      = errors.New("session is not in the playing state")
	ErrInvalidPosition = errors.New("card position out of range")
)
