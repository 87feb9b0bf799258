package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/session"
)

type stubTool struct {
	name   string
	schema ToolSchema
	fn     func(ctx context.Context, call Call) (*Result, error)
}

func (s *stubTool) Name() string            { return s.name }
func (s *stubTool) Description() string     { return "stub " + s.name }
func (s *stubTool) InputSchema() ToolSchema { return s.schema }
func (s *stubTool) Execute(ctx context.Context, call Call) (*Result, error) {
	return s.fn(ctx, call)
}

func objectSchema() ToolSchema {
	return ToolSchema{
		Type:       "object",
		Properties: map[string]PropertyDef{"q": {Type: "string"}},
		Required:   []string{"q"},
	}
}

func testSession(t *testing.T) *session.Session {
	t.Helper()
	return session.NewStore().GetOrCreate("4915112345")
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry(0, nil)

	ok := &stubTool{name: "a", schema: objectSchema()}
	require.NoError(t, r.Register(ok))
	assert.Error(t, r.Register(ok), "duplicate")
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&stubTool{name: "", schema: objectSchema()}))
	assert.Error(t, r.Register(&stubTool{name: "b", schema: ToolSchema{Type: "string"}}))
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_Specs(t *testing.T) {
	r := NewRegistry(0, nil)
	require.NoError(t, r.RegisterAll(
		&stubTool{name: "zeta", schema: objectSchema()},
		&stubTool{name: "alpha", schema: ToolSchema{Type: "object"}},
	))

	specs := r.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, "alpha", specs[0].Name)
	assert.Equal(t, "zeta", specs[1].Name)

	params := specs[1].Parameters
	assert.Equal(t, "object", params["type"])
	assert.Equal(t, []string{"q"}, params["required"])
	props, ok := params["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "q")

	_, hasRequired := specs[0].Parameters["required"]
	assert.False(t, hasRequired)
}

func TestRegistry_ExecuteUnknownTool(t *testing.T) {
	r := NewRegistry(0, nil)
	res := r.Execute(context.Background(), Call{ID: "c1", Name: "missing"})
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown tool")
}

func TestRegistry_ExecuteErrorBecomesFailure(t *testing.T) {
	r := NewRegistry(0, nil)
	require.NoError(t, r.Register(&stubTool{
		name:   "boom",
		schema: objectSchema(),
		fn: func(context.Context, Call) (*Result, error) {
			return nil, errors.New("backend down")
		},
	}))

	res := r.Execute(context.Background(), Call{Name: "boom"})
	assert.False(t, res.Success)
	assert.Equal(t, "backend down", res.Error)
}

func TestRegistry_ExecuteTimeout(t *testing.T) {
	r := NewRegistry(20*time.Millisecond, nil)
	require.NoError(t, r.Register(&stubTool{
		name:   "slow",
		schema: objectSchema(),
		fn: func(ctx context.Context, _ Call) (*Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}))

	res := r.Execute(context.Background(), Call{Name: "slow"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timeout")
}

func TestRegistry_ExecuteNilResult(t *testing.T) {
	r := NewRegistry(0, nil)
	require.NoError(t, r.Register(&stubTool{
		name:   "quiet",
		schema: objectSchema(),
		fn:     func(context.Context, Call) (*Result, error) { return nil, nil },
	}))
	assert.True(t, r.Execute(context.Background(), Call{Name: "quiet"}).Success)
}

func TestResultContent(t *testing.T) {
	res := &Result{Success: true, Data: map[string]any{"language": "de"}}

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Content()), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "de", body["language"])
	assert.NotContains(t, body, "error")

	fail := Failure(errors.New("nope"))
	require.NoError(t, json.Unmarshal([]byte(fail.Content()), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "nope", body["error"])
}

func TestSetLanguage(t *testing.T) {
	tool := NewSetLanguage([]string{"en", "de"})
	sess := testSession(t)

	tests := []struct {
		name     string
		input    string
		success  bool
		wantLang string
	}{
		{"supported", `{"language":"DE "}`, true, "de"},
		{"unsupported", `{"language":"fr"}`, false, "de"},
		{"missing", `{}`, false, "de"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tool.Execute(context.Background(), Call{Input: json.RawMessage(tt.input), Session: sess})
			require.NoError(t, err)
			assert.Equal(t, tt.success, res.Success)
			assert.True(t, res.Resubmit)
			assert.Equal(t, tt.wantLang, sess.Language())
		})
	}

	_, err := tool.Execute(context.Background(), Call{Input: json.RawMessage(`{`), Session: sess})
	assert.Error(t, err)
}
