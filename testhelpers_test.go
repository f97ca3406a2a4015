package reagent

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"
)

// mockProvider is a test Provider that returns canned responses in order.
type mockProvider struct {
	name      string
	responses []GenerateResponse // popped in order
	idx       int
	calls     int
}

func (m *mockProvider) Name() string {
	if m.name == "" {
		return "mock"
	}
	return m.name
}

func (m *mockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	m.calls++
	return m.next(), nil
}

func (m *mockProvider) GenerateStream(ctx context.Context, req GenerateRequest, ch chan<- StreamChunk) (GenerateResponse, error) {
	defer close(ch)
	m.calls++
	resp := m.next()
	if resp.Thinking != "" {
		ch <- StreamChunk{Type: ChunkThinking, Delta: resp.Thinking}
	}
	if resp.Text != "" {
		ch <- StreamChunk{Type: ChunkContent, Delta: resp.Text}
	}
	return resp, nil
}

func (m *mockProvider) next() GenerateResponse {
	if m.idx >= len(m.responses) {
		return GenerateResponse{Text: "exhausted"}
	}
	resp := m.responses[m.idx]
	m.idx++
	return resp
}

// errProvider always fails.
type errProvider struct {
	err error
}

func (e *errProvider) Name() string { return "err" }
func (e *errProvider) Generate(context.Context, GenerateRequest) (GenerateResponse, error) {
	return GenerateResponse{}, e.err
}
func (e *errProvider) GenerateStream(_ context.Context, _ GenerateRequest, ch chan<- StreamChunk) (GenerateResponse, error) {
	close(ch)
	return GenerateResponse{}, e.err
}

// seqProvider returns one canned result per call, where each entry may be a
// response or an error. Used by retry middleware tests.
type seqProvider struct {
	results []func() (GenerateResponse, error)
	idx     int
}

func (s *seqProvider) Name() string { return "seq" }
func (s *seqProvider) Generate(context.Context, GenerateRequest) (GenerateResponse, error) {
	fn := s.results[s.idx]
	s.idx++
	return fn()
}
func (s *seqProvider) GenerateStream(_ context.Context, _ GenerateRequest, ch chan<- StreamChunk) (GenerateResponse, error) {
	defer close(ch)
	fn := s.results[s.idx]
	s.idx++
	resp, err := fn()
	if err == nil && resp.Text != "" {
		ch <- StreamChunk{Type: ChunkContent, Delta: resp.Text}
	}
	return resp, err
}

// --- Tool mocks ---

// echoTool returns its arguments as content.
func echoTool(name string) Tool {
	return NewTool(name, "echoes args", nil, func(_ context.Context, args json.RawMessage) (ToolResult, error) {
		return ToolResult{Content: string(args)}, nil
	})
}

// sleepTool sleeps for d ignoring its context, then succeeds. The context
// blindness is deliberate: it exercises the per-attempt timeout path.
func sleepTool(name string, d time.Duration) Tool {
	return NewTool(name, "sleeps", nil, func(_ context.Context, _ json.RawMessage) (ToolResult, error) {
		time.Sleep(d)
		return ToolResult{Content: "slept"}, nil
	})
}

// flakyTool fails the first failures attempts, then succeeds.
func flakyTool(name string, failures int) Tool {
	var n atomic.Int32
	return NewTool(name, "flaky", nil, func(_ context.Context, _ json.RawMessage) (ToolResult, error) {
		if int(n.Add(1)) <= failures {
			return ToolResult{Error: "transient failure"}, nil
		}
		return ToolResult{Content: "recovered"}, nil
	})
}

// invalidTool always reports a validation failure.
func invalidTool(name string) Tool {
	return NewTool(name, "rejects args", nil, func(_ context.Context, _ json.RawMessage) (ToolResult, error) {
		return ToolResult{Error: "bad arguments", Invalid: true}, nil
	})
}

// panicTool always panics.
func panicTool(name string) Tool {
	return NewTool(name, "panics", nil, func(_ context.Context, _ json.RawMessage) (ToolResult, error) {
		panic("boom")
	})
}

// testConfig builds a valid Config around p with sane fast test policies.
func testConfig(p Provider, tools ...Tool) *Config {
	cfg, err := BuildConfig(ConfigInput{
		Model:    "test-model",
		Provider: p,
		Tools:    tools,
		ToolPolicy: ToolPolicy{
			Timeout:      2 * time.Second,
			MaxRetries:   1,
			RetryBackoff: 5 * time.Millisecond,
			Concurrency:  4,
		},
		TokenPolicy: TokenPolicy{SigningSecret: "test-secret"},
	})
	if err != nil {
		panic(err)
	}
	return cfg
}

// toolCallResponse builds a model turn requesting the given tool calls.
func toolCallResponse(calls ...ToolCall) GenerateResponse {
	return GenerateResponse{ToolCalls: calls, Usage: Usage{InputTokens: 10, OutputTokens: 5}}
}

// finalResponse builds a final-answer model turn.
func finalResponse(text string) GenerateResponse {
	return GenerateResponse{Text: text, Usage: Usage{InputTokens: 10, OutputTokens: 5}}
}

// drain collects all events from a handle's stream.
func drain(h *RunHandle) []Event {
	var evs []Event
	for ev := range h.Events() {
		evs = append(evs, ev)
	}
	return evs
}

// kinds projects events to their kinds.
func kinds(evs []Event) []EventKind {
	out := make([]EventKind, len(evs))
	for i, ev := range evs {
		out[i] = ev.Kind
	}
	return out
}
