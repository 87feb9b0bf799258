package session

import "errors"

// Errors returned by session operations.
var (
	ErrInvalidTransition = errors.New("invalid tool call state transition")
	ErrToolCallMismatch  = errors.New("tool call id does not match pending call")
)
