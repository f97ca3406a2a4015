package reagent

import "encoding/json"

// --- LLM protocol types ---

// ChatMessage is one conversation turn in the flat form providers accept.
// It doubles as the Thread entry type: a tool-result message carries
// ToolCallID and ToolName, an assistant message may carry requested
// ToolCalls and captured Thinking.
type ChatMessage struct {
	Role       string          `json:"role"` // "system", "user", "assistant", "tool"
	Content    string          `json:"content"`
	Thinking   string          `json:"thinking,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"` // provider-specific
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolDefinition describes a callable tool to the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// Usage tracks token consumption. Counters are monotonically non-decreasing
// over the life of a run.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add folds another usage sample into u. TotalTokens is recomputed from the
// input/output counters so it stays consistent regardless of what the
// provider reported.
func (u *Usage) Add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.TotalTokens = u.InputTokens + u.OutputTokens
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}

func ToolResultMessage(callID, name, content string) ChatMessage {
	return ChatMessage{Role: "tool", Content: content, ToolCallID: callID, ToolName: name}
}
