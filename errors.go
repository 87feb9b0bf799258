package pipeline

import (
	"errors"
	"fmt"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/tool"
)

// Common errors for engine operations.
var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrAlreadyStarted = errors.New("engine already started")
	ErrNotStarted     = errors.New("engine not started")
	ErrEmptyReply     = errors.New("completion returned an empty reply")
	ErrUnknownTool    = tool.ErrUnknownTool
)

// DispatchError reports a failed step of a session's dispatch.
type DispatchError struct {
	Op        string // complete, tool, send, reset
	SessionID string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s for session %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
