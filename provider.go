package reagent

import "context"

// Provider abstracts the model backend. Implementations live in the
// provider/ subpackages; tests use canned in-memory providers.
type Provider interface {
	// Generate sends a request and returns a complete response. When
	// req.Tools is non-empty the response may contain tool calls.
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
	// GenerateStream streams chunks into ch, then returns the final
	// accumulated response with usage stats. Implementations must close ch
	// before returning, on success and on error.
	GenerateStream(ctx context.Context, req GenerateRequest, ch chan<- StreamChunk) (GenerateResponse, error)
	// Name returns the provider name (e.g. "openai", "mock").
	Name() string
}

// GenerateRequest is one model turn.
type GenerateRequest struct {
	Model       string
	Messages    []ChatMessage
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature *float64
}

// GenerateResponse is the model's reply to one turn. A reply either carries
// ToolCalls (the model wants a tool round) or Text (a final answer).
type GenerateResponse struct {
	Text      string
	Thinking  string
	ToolCalls []ToolCall
	Usage     Usage
}

// ChunkType classifies a streamed delta.
type ChunkType string

const (
	ChunkContent  ChunkType = "content"
	ChunkThinking ChunkType = "thinking"
)

// StreamChunk is one incremental piece of a streamed model response.
type StreamChunk struct {
	Type  ChunkType
	Delta string
}
