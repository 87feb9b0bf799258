// Package tool defines the tools the completion engine may invoke during a
// conversation and the registry that dispatches them.
package tool

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/session"
)

// ErrUnknownTool is reported when the model names a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Tool is the interface that all tools must implement
type Tool interface {
	// Name returns the tool name (used in API calls)
	Name() string

	// Description returns a human-readable description of what the tool does
	Description() string

	// InputSchema returns the JSON Schema for the tool's input parameters
	InputSchema() ToolSchema

	// Execute runs the tool. A returned error is converted into a failure
	// result by the registry; tools that want to shape the failure return a
	// Result with Success false instead.
	Execute(ctx context.Context, call Call) (*Result, error)
}

// ToolSchema defines the JSON Schema for a tool's input parameters
type ToolSchema struct {
	// Type must be "object"
	Type string `json:"type"`

	// Properties defines the tool's parameters
	Properties map[string]PropertyDef `json:"properties"`

	// Required lists the names of required parameters
	Required []string `json:"required,omitempty"`
}

// PropertyDef defines a single property in the tool schema
type PropertyDef struct {
	Type        string       `json:"type"`
	Description string       `json:"description,omitempty"`
	Enum        []string     `json:"enum,omitempty"`
	Items       *PropertyDef `json:"items,omitempty"`
}

// Call is a single tool invocation bound to the session it runs against.
type Call struct {
	ID      string
	Name    string
	Input   json.RawMessage
	Session *session.Session
}

// Outcome tells the engine which localized reply to fall back on when the
// model produced no text alongside an external tool call.
type Outcome string

const (
	OutcomeNone        Outcome = ""
	OutcomeLeadSaved   Outcome = "lead_saved"
	OutcomeLeadFailed  Outcome = "lead_failed"
	OutcomeMediaFailed Outcome = "media_failed"
)

// Result is what a tool reports back to the completion engine.
type Result struct {
	Success bool
	Data    map[string]any
	Error   string

	// Resubmit asks the engine to run another completion pass so the model
	// can answer with the new state. Set by session-local and read-only tools.
	Resubmit bool

	Outcome Outcome
}

// Failure builds a failed result from err.
func Failure(err error) *Result {
	return &Result{Success: false, Error: err.Error()}
}

// Content renders the result as the JSON body of a tool-result turn.
func (r *Result) Content() string {
	body := make(map[string]any, len(r.Data)+2)
	for k, v := range r.Data {
		body[k] = v
	}
	body["success"] = r.Success
	if r.Error != "" {
		body["error"] = r.Error
	}

	data, err := json.Marshal(body)
	if err != nil {
		return `{"success":false,"error":"unencodable tool result"}`
	}
	return string(data)
}

// decodeInput unmarshals call arguments, treating empty input as "{}".
func decodeInput(input json.RawMessage, v any) error {
	if len(input) == 0 {
		return nil
	}
	return json.Unmarshal(input, v)
}
