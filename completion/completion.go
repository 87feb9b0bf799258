// Package completion defines the contract between the session engine and a
// completion engine (a hosted chat model with tool calling).
package completion

import (
	"context"
	"errors"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/session"
)

// ErrNoChoices is returned when the provider answers without any candidate.
var ErrNoChoices = errors.New("completion returned no choices")

// ToolSpec describes a tool the model may invoke. Parameters is a JSON schema
// object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one completion pass over a transcript whose first turn is the
// system turn.
type Request struct {
	Turns []session.Turn
	Tools []ToolSpec
}

// Usage reports token accounting returned by the provider.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Reply is either a final text answer or one or more tool invocations, with
// optional accompanying text.
type Reply struct {
	Text       string
	ToolCalls  []session.ToolInvocation
	StopReason string
	Usage      Usage
}

// WantsTool reports whether the reply designates a tool invocation.
func (r *Reply) WantsTool() bool { return len(r.ToolCalls) > 0 }

// Client performs a single completion pass. Implementations do not retry.
type Client interface {
	Complete(ctx context.Context, req Request) (*Reply, error)
}

// SystemPrompt returns the text of the leading system turns.
func SystemPrompt(turns []session.Turn) string {
	prompt := ""
	for _, t := range turns {
		if t.Role != session.RoleSystem {
			break
		}
		if prompt != "" {
			prompt += "\n\n"
		}
		prompt += t.Text()
	}
	return prompt
}

// Sanitize drops tool-result turns whose invoking assistant turn is no
// longer in the transcript. History trimming evicts oldest turns first and
// can separate a result from its call; providers reject such orphans.
func Sanitize(turns []session.Turn) []session.Turn {
	issued := make(map[string]bool)
	out := make([]session.Turn, 0, len(turns))
	for _, t := range turns {
		switch {
		case t.Role == session.RoleAssistant:
			for _, call := range t.ToolCalls {
				issued[call.ID] = true
			}
		case t.Role == session.RoleTool && !issued[t.ToolCallID]:
			continue
		}
		out = append(out, t)
	}
	return out
}
