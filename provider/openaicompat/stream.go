package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	reagent "github.com/nevindra/reagent"
)

// streamSSE reads a chat completions SSE stream from body, forwards content
// and reasoning deltas to ch, and returns the fully accumulated response
// (text + thinking + tool calls + usage). ch is closed before returning.
//
// Expected wire format:
//
//	data: {"id":"...","choices":[...]}\n
//	data: [DONE]\n
func streamSSE(ctx context.Context, body io.Reader, ch chan<- reagent.StreamChunk) (reagent.GenerateResponse, error) {
	defer close(ch)

	scanner := bufio.NewScanner(body)
	// Large tool call arguments can exceed the default line buffer.
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var content, thinking strings.Builder
	var total reagent.Usage

	// Tool calls stream incrementally: each fragment carries an index and a
	// piece of the arguments string. Args is a byte slice, not a
	// strings.Builder: growing the slice copies the structs, which a non-zero
	// Builder forbids.
	type partialToolCall struct {
		ID   string
		Name string
		Args []byte
	}
	var toolCalls []partialToolCall

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks.
			continue
		}
		if chunk.Usage != nil {
			total = reagent.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				TotalTokens:  chunk.Usage.PromptTokens + chunk.Usage.CompletionTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta == nil {
			continue
		}

		if delta.ReasoningContent != "" {
			thinking.WriteString(delta.ReasoningContent)
			select {
			case ch <- reagent.StreamChunk{Type: reagent.ChunkThinking, Delta: delta.ReasoningContent}:
			case <-ctx.Done():
				return reagent.GenerateResponse{}, ctx.Err()
			}
		}
		if delta.Content != "" {
			content.WriteString(delta.Content)
			select {
			case ch <- reagent.StreamChunk{Type: reagent.ChunkContent, Delta: delta.Content}:
			case <-ctx.Done():
				return reagent.GenerateResponse{}, ctx.Err()
			}
		}

		for _, tc := range delta.ToolCalls {
			idx := tc.Index
			for len(toolCalls) <= idx {
				toolCalls = append(toolCalls, partialToolCall{})
			}
			if tc.ID != "" {
				toolCalls[idx].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[idx].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[idx].Args = append(toolCalls[idx].Args, tc.Function.Arguments...)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return reagent.GenerateResponse{}, err
	}

	var calls []reagent.ToolCall
	for _, tc := range toolCalls {
		args := json.RawMessage(tc.Args)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		calls = append(calls, reagent.ToolCall{ID: tc.ID, Name: tc.Name, Args: args})
	}

	return reagent.GenerateResponse{
		Text:      content.String(),
		Thinking:  thinking.String(),
		ToolCalls: calls,
		Usage:     total,
	}, nil
}
