package reagent

import (
	"context"
	"encoding/json"
)

// Tool is one callable capability exposed to the model.
type Tool interface {
	// Name returns the tool's unique name.
	Name() string
	// Description returns a human-readable description for the model.
	Description() string
	// Parameters returns the JSON Schema of the tool's arguments.
	Parameters() json.RawMessage
	// Run executes the tool. A Go error signals infrastructure failure
	// (retried); ToolResult.Error signals a tool-level failure (retried);
	// ToolResult.Invalid marks a caller mistake that retrying cannot fix.
	Run(ctx context.Context, args json.RawMessage) (ToolResult, error)
}

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
	// Invalid marks Error as a validation failure of the arguments
	// (the 4xx analogue). Invalid results are never retried.
	Invalid bool `json:"invalid,omitempty"`
}

// funcTool adapts a plain function to the Tool interface.
type funcTool struct {
	name   string
	desc   string
	params json.RawMessage
	fn     func(ctx context.Context, args json.RawMessage) (ToolResult, error)
}

// NewTool wraps fn as a Tool. params may be nil for tools without arguments.
func NewTool(name, description string, params json.RawMessage, fn func(ctx context.Context, args json.RawMessage) (ToolResult, error)) Tool {
	return &funcTool{name: name, desc: description, params: params, fn: fn}
}

func (t *funcTool) Name() string                { return t.name }
func (t *funcTool) Description() string         { return t.desc }
func (t *funcTool) Parameters() json.RawMessage { return t.params }
func (t *funcTool) Run(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	return t.fn(ctx, args)
}

// toolDefinition projects a Tool into the form sent to the model.
func toolDefinition(t Tool) ToolDefinition {
	params := t.Parameters()
	if len(params) == 0 {
		params = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return ToolDefinition{Name: t.Name(), Description: t.Description(), Parameters: params}
}

// --- tool invocation context ---

type toolContextKey struct{}

// WithToolContext returns a context carrying caller-supplied metadata that is
// forwarded verbatim to every tool invocation of a run.
func WithToolContext(ctx context.Context, meta map[string]any) context.Context {
	return context.WithValue(ctx, toolContextKey{}, meta)
}

// ToolContext returns the metadata attached by WithToolContext, or nil.
func ToolContext(ctx context.Context) map[string]any {
	m, _ := ctx.Value(toolContextKey{}).(map[string]any)
	return m
}
