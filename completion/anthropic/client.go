// Package anthropic adapts the Anthropic Messages API to completion.Client.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/completion"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/session"
)

// DefaultModel is the model used when Config.Model is empty.
const DefaultModel = "claude-3-5-haiku-latest"

// Config holds Anthropic connection and sampling configuration.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	Temperature     float64
	MaxOutputTokens int64 // Default: 1024
}

// Client implements completion.Client using the Anthropic Messages API.
type Client struct {
	client anthropic.Client
	config Config
}

// New creates a new Anthropic completion client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 1024
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client: anthropic.NewClient(opts...),
		config: cfg,
	}, nil
}

// Complete implements completion.Client.
func (c *Client) Complete(ctx context.Context, req completion.Request) (*completion.Reply, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		MaxTokens: c.config.MaxOutputTokens,
		Messages:  toMessages(req.Turns),
	}
	if system := completion.SystemPrompt(req.Turns); system != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: system},
		}
	}
	if len(req.Tools) > 0 {
		params.Tools = toTools(req.Tools)
	}
	if c.config.Temperature > 0 {
		params.Temperature = anthropic.Float(c.config.Temperature)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages call failed: %w", err)
	}

	return fromMessage(resp), nil
}

// toMessages converts non-system turns to Anthropic messages. Tool results
// travel in user messages, and consecutive turns with the same role are
// merged into one message.
//
// The API requires the first message to be a user message. History trimming
// can leave assistant or tool turns at the front, so everything before the
// first user text turn is skipped.
func toMessages(turns []session.Turn) []anthropic.MessageParam {
	turns = fromFirstUserTurn(turns)
	messages := make([]anthropic.MessageParam, 0, len(turns))

	appendBlocks := func(role anthropic.MessageParamRole, blocks ...anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content = append(messages[n-1].Content, blocks...)
			return
		}
		messages = append(messages, anthropic.MessageParam{
			Role:    role,
			Content: blocks,
		})
	}

	for _, t := range turns {
		switch t.Role {
		case session.RoleUser:
			if text := t.Text(); text != "" {
				appendBlocks(anthropic.MessageParamRoleUser, anthropic.NewTextBlock(text))
			}

		case session.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(t.ToolCalls)+1)
			if text := t.Text(); text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, call := range t.ToolCalls {
				// API requires a JSON object as tool input
				input := json.RawMessage(call.Arguments)
				if len(input) == 0 || string(input) == "null" {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			appendBlocks(anthropic.MessageParamRoleAssistant, blocks...)

		case session.RoleTool:
			appendBlocks(anthropic.MessageParamRoleUser,
				anthropic.NewToolResultBlock(t.ToolCallID, t.Text(), t.IsError))
		}
	}

	return messages
}

func fromFirstUserTurn(turns []session.Turn) []session.Turn {
	for i, t := range turns {
		if t.Role == session.RoleUser && t.Text() != "" {
			return turns[i:]
		}
	}
	return nil
}

// toTools converts tool specs to Anthropic tool definitions.
func toTools(specs []completion.ToolSpec) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: spec.Parameters["properties"],
		}
		if required, ok := spec.Parameters["required"].([]string); ok && len(required) > 0 {
			inputSchema.Required = required
		}

		toolParam := anthropic.ToolParam{
			Name:        spec.Name,
			Description: anthropic.String(spec.Description),
			InputSchema: inputSchema,
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return tools
}

// fromMessage converts an Anthropic response to a completion reply.
func fromMessage(msg *anthropic.Message) *completion.Reply {
	reply := &completion.Reply{
		StopReason: string(msg.StopReason),
		Usage: completion.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}

	for _, block := range msg.Content {
		switch block := block.AsAny().(type) {
		case anthropic.TextBlock:
			if reply.Text != "" {
				reply.Text += "\n"
			}
			reply.Text += block.Text
		case anthropic.ToolUseBlock:
			args := json.RawMessage(block.Input)
			if len(args) == 0 {
				args = json.RawMessage(`{}`)
			}
			reply.ToolCalls = append(reply.ToolCalls, session.ToolInvocation{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}

	return reply
}

// Compile-time check that Client implements completion.Client.
var _ completion.Client = (*Client)(nil)
