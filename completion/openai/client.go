// Package openai adapts the OpenAI chat-completions API to completion.Client.
package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/completion"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/session"
)

// DefaultModel is the chat model used when Config.Model is empty.
const DefaultModel = "gpt-4o-mini"

// Config holds OpenAI connection and sampling configuration.
type Config struct {
	APIKey          string
	BaseURL         string // optional, for compatible gateways
	Model           string
	Temperature     float32
	MaxOutputTokens int
}

// Client implements completion.Client using OpenAI chat completions.
type Client struct {
	client *openai.Client
	config Config
}

// New creates a new OpenAI completion client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	return &Client{
		client: openai.NewClientWithConfig(oc),
		config: cfg,
	}, nil
}

// Complete implements completion.Client.
func (c *Client) Complete(ctx context.Context, req completion.Request) (*completion.Reply, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    toChatMessages(req.Turns),
		Temperature: c.config.Temperature,
	}
	if c.config.MaxOutputTokens > 0 {
		chatReq.MaxCompletionTokens = c.config.MaxOutputTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toTools(req.Tools)
		chatReq.ToolChoice = "auto"
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, completion.ErrNoChoices
	}

	return fromChoice(resp.Choices[0], resp.Usage), nil
}

// toChatMessages converts session turns to OpenAI chat messages.
func toChatMessages(turns []session.Turn) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case session.RoleSystem:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: t.Text(),
			})

		case session.RoleUser:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: t.Text(),
			})

		case session.RoleAssistant:
			msg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: t.Text(),
			}
			for _, call := range t.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: string(call.Arguments),
					},
				})
			}
			messages = append(messages, msg)

		case session.RoleTool:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    t.Text(),
				Name:       t.ToolName,
				ToolCallID: t.ToolCallID,
			})
		}
	}
	return messages
}

// toTools converts tool specs to OpenAI function tools.
func toTools(specs []completion.ToolSpec) []openai.Tool {
	tools := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}
	return tools
}

// fromChoice converts the first choice into a completion reply.
func fromChoice(choice openai.ChatCompletionChoice, usage openai.Usage) *completion.Reply {
	reply := &completion.Reply{
		Text:       choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: completion.Usage{
			InputTokens:  int64(usage.PromptTokens),
			OutputTokens: int64(usage.CompletionTokens),
		},
	}
	for _, call := range choice.Message.ToolCalls {
		args := call.Function.Arguments
		if args == "" {
			args = "{}"
		}
		reply.ToolCalls = append(reply.ToolCalls, session.ToolInvocation{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: []byte(args),
		})
	}
	return reply
}

// Compile-time check that Client implements completion.Client.
var _ completion.Client = (*Client)(nil)
