package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	reagent "github.com/nevindra/reagent"
)

// Provider talks to an OpenAI-compatible chat completions endpoint. The model
// comes from each GenerateRequest, so one Provider serves any number of
// configs against the same API.
type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
	name    string
	logger  *slog.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client (timeouts, proxies, transports).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithName overrides the provider name reported by Name (default "openai").
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithLogger sets a structured logger for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// New creates a provider for baseURL (e.g. "https://api.openai.com/v1",
// "http://localhost:11434/v1"). The /chat/completions path is appended
// automatically. apiKey may be empty for local servers.
func New(apiKey, baseURL string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{},
		name:    "openai",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return p.name }

// Generate sends a non-streaming request and returns the complete response.
func (p *Provider) Generate(ctx context.Context, req reagent.GenerateRequest) (reagent.GenerateResponse, error) {
	resp, err := p.sendHTTP(ctx, p.buildBody(req))
	if err != nil {
		return reagent.GenerateResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return reagent.GenerateResponse{}, p.httpErr(resp)
	}

	var body chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return reagent.GenerateResponse{}, &reagent.ErrLLM{Provider: p.name, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return parseResponse(body), nil
}

// GenerateStream streams deltas into ch and returns the accumulated response.
// ch is closed before returning, on success and on error.
func (p *Provider) GenerateStream(ctx context.Context, req reagent.GenerateRequest, ch chan<- reagent.StreamChunk) (reagent.GenerateResponse, error) {
	body := p.buildBody(req)
	body.Stream = true
	body.StreamOptions = &streamOptions{IncludeUsage: true}

	resp, err := p.sendHTTP(ctx, body)
	if err != nil {
		close(ch)
		return reagent.GenerateResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		close(ch)
		return reagent.GenerateResponse{}, p.httpErr(resp)
	}

	// streamSSE closes ch when done.
	return streamSSE(ctx, resp.Body, ch)
}

// buildBody projects the engine request into the wire format.
func (p *Provider) buildBody(req reagent.GenerateRequest) chatRequest {
	body := chatRequest{
		Model:       req.Model,
		Messages:    make([]message, 0, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, m := range req.Messages {
		msg := message{Role: m.Role, Content: m.Content}
		if m.Role == "tool" {
			msg.ToolCallID = m.ToolCallID
			msg.Name = m.ToolName
		}
		for i, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, toolCallRequest{
				Index: i,
				ID:    tc.ID,
				Type:  "function",
				Function: functionCall{
					Name:      tc.Name,
					Arguments: string(tc.Args),
				},
			})
		}
		body.Messages = append(body.Messages, msg)
	}
	for _, d := range req.Tools {
		body.Tools = append(body.Tools, tool{
			Type: "function",
			Function: function{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return body
}

func (p *Provider) sendHTTP(ctx context.Context, body chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &reagent.ErrLLM{Provider: p.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &reagent.ErrLLM{Provider: p.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	return p.client.Do(httpReq)
}

// httpErr reads the response body and returns an ErrHTTP so retry middleware
// can classify it. Parses the Retry-After header when present.
func (p *Provider) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return &reagent.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       string(body),
		RetryAfter: reagent.ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// parseResponse converts a wire response into the engine form.
func parseResponse(resp chatResponse) reagent.GenerateResponse {
	var out reagent.GenerateResponse
	if resp.Usage != nil {
		out.Usage = reagent.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.PromptTokens + resp.Usage.CompletionTokens,
		}
	}
	if len(resp.Choices) == 0 {
		return out
	}
	msg := resp.Choices[0].Message
	if msg == nil {
		return out
	}
	out.Text = msg.Content
	out.Thinking = msg.ReasoningContent
	out.ToolCalls = parseToolCalls(msg.ToolCalls)
	return out
}

// parseToolCalls converts wire tool calls. Arguments arrive as a JSON string;
// invalid JSON is replaced by an empty object so the engine's validation
// path, not a decode panic, reports the problem.
func parseToolCalls(tcs []toolCallRequest) []reagent.ToolCall {
	if len(tcs) == 0 {
		return nil
	}
	out := make([]reagent.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out = append(out, reagent.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	return out
}

var _ reagent.Provider = (*Provider)(nil)
