package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/completion"
	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/session"
)

func TestToChatMessages(t *testing.T) {
	turns := []session.Turn{
		{Role: session.RoleSystem, Content: "sys"},
		{Role: session.RoleUser, Content: "hi there "},
		{
			Role: session.RoleAssistant,
			ToolCalls: []session.ToolInvocation{
				{ID: "call_1", Name: "setUserLanguage", Arguments: json.RawMessage(`{"language":"de"}`)},
			},
		},
		{Role: session.RoleTool, ToolCallID: "call_1", ToolName: "setUserLanguage", Content: `{"success":true}`},
	}

	msgs := toChatMessages(turns)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "hi there ", msgs[1].Content)
	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, "call_1", msgs[2].ToolCalls[0].ID)
	assert.Equal(t, `{"language":"de"}`, msgs[2].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "tool", msgs[3].Role)
	assert.Equal(t, "call_1", msgs[3].ToolCallID)
}

func TestCompleteParsesToolCalls(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_abc",
						"type": "function",
						"function": {"name": "saveLead", "arguments": "{\"name\":\"Anna\"}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 42, "completion_tokens": 7, "total_tokens": 49}
		}`)
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	reply, err := c.Complete(context.Background(), completion.Request{
		Turns: []session.Turn{
			{Role: session.RoleSystem, Content: "sys"},
			{Role: session.RoleUser, Content: "I am Anna"},
		},
		Tools: []completion.ToolSpec{{
			Name:        "saveLead",
			Description: "save",
			Parameters:  map[string]any{"type": "object"},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, captured["model"])
	assert.Equal(t, "auto", captured["tool_choice"])
	assert.True(t, reply.WantsTool())
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "call_abc", reply.ToolCalls[0].ID)
	assert.Equal(t, "saveLead", reply.ToolCalls[0].Name)
	assert.JSONEq(t, `{"name":"Anna"}`, string(reply.ToolCalls[0].Arguments))
	assert.Equal(t, "tool_calls", reply.StopReason)
	assert.Equal(t, int64(42), reply.Usage.InputTokens)
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[]}`)
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), completion.Request{})
	assert.ErrorIs(t, err, completion.ErrNoChoices)
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
