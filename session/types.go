package session

import (
	"encoding/json"
	"strings"
	"time"
)

// Role tags a turn in the conversation history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies the kind of a structured content part.
type PartType string

const (
	PartText  PartType = "text"
	PartMedia PartType = "media"
)

// Part is one element of a structured turn. Only text parts carry a token cost.
type Part struct {
	Type  PartType  `json:"type"`
	Text  string    `json:"text,omitempty"`
	Media *MediaRef `json:"media,omitempty"`
}

// ToolInvocation is a tool call requested by the completion engine.
type ToolInvocation struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Turn is a single role-tagged entry of the conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`

	// Parts holds structured content. When set, Content is ignored.
	Parts []Part `json:"parts,omitempty"`

	// ToolCalls is set on assistant turns that request a tool invocation.
	ToolCalls []ToolInvocation `json:"tool_calls,omitempty"`

	// ToolCallID, ToolName and IsError are set on tool-result turns.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// TextParts returns the text-bearing pieces of the turn in order.
func (t Turn) TextParts() []string {
	if len(t.Parts) == 0 {
		if t.Content == "" {
			return nil
		}
		return []string{t.Content}
	}
	texts := make([]string, 0, len(t.Parts))
	for _, p := range t.Parts {
		if p.Type == PartText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return texts
}

// Text returns the turn's text parts joined by newlines.
func (t Turn) Text() string {
	return strings.Join(t.TextParts(), "\n")
}

// MediaRef references a media object held by the messaging channel.
type MediaRef struct {
	MediaID  string `json:"media_id"`
	MimeType string `json:"mime_type"`
}

// Fragment is a raw inbound message waiting to be coalesced into a turn.
type Fragment struct {
	Text      string    `json:"text"`
	ArrivedAt time.Time `json:"arrived_at"`
}

// LeadFields holds the profile fields collected for a conversant.
type LeadFields map[string]string

// Well-known lead field keys.
const (
	LeadName     = "name"
	LeadPhone    = "phone"
	LeadEmail    = "email"
	LeadCountry  = "country"
	LeadInterest = "interest"
	LeadNotes    = "notes"
)
