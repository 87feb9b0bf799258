package tool

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// SetLanguage records the language the conversant writes in. It only
// touches session state, so the engine re-submits right away.
type SetLanguage struct {
	supported []string
}

// NewSetLanguage creates the tool. supported lists the accepted language
// tags; an empty list accepts anything.
func NewSetLanguage(supported []string) *SetLanguage {
	return &SetLanguage{supported: supported}
}

// Name implements Tool
func (t *SetLanguage) Name() string { return "setUserLanguage" }

// Description implements Tool
func (t *SetLanguage) Description() string {
	return "Set the user's preferred language for all further replies. Call this as soon as the user writes in a language."
}

// InputSchema implements Tool
func (t *SetLanguage) InputSchema() ToolSchema {
	return ToolSchema{
		Type: "object",
		Properties: map[string]PropertyDef{
			"language": {
				Type:        "string",
				Description: "Language code, for example en or de",
				Enum:        t.supported,
			},
		},
		Required: []string{"language"},
	}
}

// Execute implements Tool
func (t *SetLanguage) Execute(ctx context.Context, call Call) (*Result, error) {
	var in struct {
		Language string `json:"language"`
	}
	if err := decodeInput(call.Input, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	lang := strings.ToLower(strings.TrimSpace(in.Language))
	if lang == "" {
		return &Result{Success: false, Error: "language is required", Resubmit: true}, nil
	}
	if len(t.supported) > 0 && !slices.Contains(t.supported, lang) {
		return &Result{
			Success:  false,
			Error:    fmt.Sprintf("unsupported language %q", lang),
			Data:     map[string]any{"supported": t.supported},
			Resubmit: true,
		}, nil
	}

	call.Session.SetLanguage(lang)
	return &Result{
		Success:  true,
		Data:     map[string]any{"language": lang},
		Resubmit: true,
	}, nil
}
