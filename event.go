package reagent

import "encoding/json"

// EventKind identifies what happened.
type EventKind string

const (
	// EventRequestStarted opens every stream. Carries Query and ConfigFingerprint.
	EventRequestStarted EventKind = "request_started"
	// EventLLMStarted signals one model turn beginning. Carries LLMCallID,
	// Model, MessageCount (and Messages when capture is enabled).
	EventLLMStarted EventKind = "llm_started"
	// EventLLMDelta carries one streamed chunk (ChunkType, Delta). Only
	// emitted on streaming runs with delta capture enabled.
	EventLLMDelta EventKind = "llm_delta"
	// EventLLMCompleted carries the turn outcome: TurnType ("final" or
	// "tool_calls"), Text, Thinking, ToolCalls, Usage.
	EventLLMCompleted EventKind = "llm_completed"
	// EventToolStarted signals one tool call dispatching. Carries
	// ToolCallID, ToolName, Arguments (redacted per config).
	EventToolStarted EventKind = "tool_started"
	// EventToolCompleted carries ToolResult, Attempts, DurationMS.
	EventToolCompleted EventKind = "tool_completed"
	// EventCheckpoint carries the issued Token and its Reason.
	EventCheckpoint EventKind = "checkpoint"
	// Terminal events; exactly one ends every stream the worker finishes.
	EventRequestCompleted EventKind = "request_completed"
	EventRequestFailed    EventKind = "request_failed"
	EventRequestCancelled EventKind = "request_cancelled"
)

// IsTerminal reports whether the kind ends a stream.
func (k EventKind) IsTerminal() bool {
	return k == EventRequestCompleted || k == EventRequestFailed || k == EventRequestCancelled
}

// Event is one tagged, ordered notification from a run. Seq is strictly
// increasing within a run, across resumes. Events are immutable once
// emitted and consumed at most once per stream.
//
// Payload fields are flat and optional; which ones are set depends on Kind
// (see the kind constants).
type Event struct {
	Seq       int64     `json:"seq"`
	RunID     string    `json:"run_id"`
	RequestID string    `json:"request_id"`
	Iteration int       `json:"iteration"`
	Kind      EventKind `json:"kind"`

	LLMCallID  string `json:"llm_call_id,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`

	// request_started
	Query             string `json:"query,omitempty"`
	ConfigFingerprint string `json:"config_fingerprint,omitempty"`

	// llm_started
	Model        string        `json:"model,omitempty"`
	MessageCount int           `json:"message_count,omitempty"`
	Messages     []ChatMessage `json:"messages,omitempty"`

	// llm_delta
	ChunkType ChunkType `json:"chunk_type,omitempty"`
	Delta     string    `json:"delta,omitempty"`

	// llm_completed
	TurnType  string     `json:"turn_type,omitempty"` // "final" or "tool_calls"
	Text      string     `json:"text,omitempty"`
	Thinking  string     `json:"thinking,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     *Usage     `json:"usage,omitempty"`

	// tool_started / tool_completed
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	ToolResult *ToolResult     `json:"tool_result,omitempty"`
	Attempts   int             `json:"attempts,omitempty"`
	DurationMS int64           `json:"duration_ms,omitempty"`

	// checkpoint
	Token  string `json:"token,omitempty"`
	Reason string `json:"reason,omitempty"` // checkpoint reason or cancel reason

	// request_completed / request_failed
	Result            string            `json:"result,omitempty"`
	TerminationReason TerminationReason `json:"termination_reason,omitempty"`
	Error             string            `json:"error,omitempty"`
	ErrorType         string            `json:"error_type,omitempty"`
}
