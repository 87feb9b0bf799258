package session

// ToolCallState is the per-session tool-call coordination state.
//
//	idle -> awaiting_result   (completion engine requested a tool)
//	awaiting_result -> idle   (tool-result turn appended)
//
// While a session is awaiting a result its inbound queue is not drained.
type ToolCallState string

const (
	// ToolCallIdle is the initial and resting state.
	ToolCallIdle ToolCallState = "idle"

	// ToolCallAwaitingResult holds while exactly one tool call is being serviced.
	ToolCallAwaitingResult ToolCallState = "awaiting_result"
)

// String implements fmt.Stringer.
func (s ToolCallState) String() string { return string(s) }

// CanTransitionTo reports whether moving from s to next is allowed.
func (s ToolCallState) CanTransitionTo(next ToolCallState) bool {
	switch s {
	case ToolCallIdle:
		return next == ToolCallAwaitingResult
	case ToolCallAwaitingResult:
		return next == ToolCallIdle
	default:
		return false
	}
}
