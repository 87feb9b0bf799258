package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/completion"
)

// DefaultTimeout bounds a single tool execution.
const DefaultTimeout = 30 * time.Second

// Registry manages tools and executes them on behalf of the engine
type Registry struct {
	tools   map[string]Tool
	mu      sync.RWMutex
	timeout time.Duration
	logger  *slog.Logger
}

// NewRegistry creates a new tool registry
func NewRegistry(timeout time.Duration, logger *slog.Logger) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:   make(map[string]Tool),
		timeout: timeout,
		logger:  logger.With("component", "tools"),
	}
}

// Register adds a tool to the registry
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool cannot be nil")
	}

	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	// Validate schema
	schema := tool.InputSchema()
	if schema.Type != "object" {
		return fmt.Errorf("tool %s: schema type must be 'object', got %s", name, schema.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	r.tools[name] = tool
	return nil
}

// RegisterAll adds multiple tools to the registry
func (r *Registry) RegisterAll(tools ...Tool) error {
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, exists := r.tools[name]
	return tool, exists
}

// Count returns the number of registered tools
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Specs returns the tool declarations offered to the completion engine,
// ordered by name.
func (r *Registry) Specs() []completion.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]completion.ToolSpec, 0, len(r.tools))
	for name, tool := range r.tools {
		specs = append(specs, completion.ToolSpec{
			Name:        name,
			Description: tool.Description(),
			Parameters:  schemaToMap(tool.InputSchema()),
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Execute runs the named tool with a timeout. It never returns nil: unknown
// tools, errors and timeouts become failure results so that every tool call
// is answered.
func (r *Registry) Execute(ctx context.Context, call Call) *Result {
	tool, ok := r.Get(call.Name)
	if !ok {
		r.logger.Warn("model requested unknown tool", "tool", call.Name)
		return Failure(fmt.Errorf("%w: %s", ErrUnknownTool, call.Name))
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	result, err := tool.Execute(execCtx, call)
	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("tool execution timeout after %v", r.timeout)
		}
		r.logger.Error("tool failed", "tool", call.Name, "call_id", call.ID, "error", err)
		return Failure(err)
	}
	if result == nil {
		result = &Result{Success: true}
	}

	r.logger.Debug("tool executed",
		"tool", call.Name,
		"call_id", call.ID,
		"success", result.Success,
		"duration", time.Since(start),
	)
	return result
}

func schemaToMap(schema ToolSchema) map[string]any {
	params := map[string]any{
		"type":       schema.Type,
		"properties": map[string]any{},
	}
	if len(schema.Properties) > 0 {
		data, err := json.Marshal(schema.Properties)
		if err == nil {
			var props map[string]any
			if json.Unmarshal(data, &props) == nil {
				params["properties"] = props
			}
		}
	}
	if len(schema.Required) > 0 {
		params["required"] = schema.Required
	}
	return params
}
