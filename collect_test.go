package reagent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestCollectCompletedRun(t *testing.T) {
	mock := &mockProvider{responses: []GenerateResponse{
		toolCallResponse(ToolCall{ID: "c1", Name: "add", Args: json.RawMessage(`{"a":2,"b":2}`)}),
		finalResponse("4"),
	}}
	cfg := testConfig(mock, addTool())

	h, err := Start(context.Background(), "what is 2+2?", cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	out, err := Collect(context.Background(), h)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if out.Result != "4" || out.TerminationReason != TerminationFinalAnswer {
		t.Errorf("outcome = %+v", out)
	}
	if out.Usage.InputTokens != 20 || out.Usage.OutputTokens != 10 {
		t.Errorf("usage = %+v", out.Usage)
	}
	if out.Err != nil {
		t.Errorf("err = %+v", out.Err)
	}
	if out.FinalToken == "" {
		t.Fatal("no final token")
	}
	// The final token is the terminal checkpoint.
	cp, err := DecodeToken(out.FinalToken, cfg)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if cp.Reason != CheckpointTerminal || cp.State.Status != StatusCompleted {
		t.Errorf("final token = %s/%s", cp.Reason, cp.State.Status)
	}
	if len(out.Trace) == 0 || out.Trace[0].Kind != EventRequestStarted {
		t.Errorf("trace = %v", kinds(out.Trace))
	}
}

func TestCollectFailedRun(t *testing.T) {
	cfg := testConfig(&errProvider{err: errors.New("backend down")})
	h, err := Start(context.Background(), "hello", cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	out, err := Collect(context.Background(), h)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if out.TerminationReason != TerminationFailed {
		t.Errorf("reason = %q", out.TerminationReason)
	}
	if out.Err == nil || out.Err.Type != ErrorTypeLLMRequest || out.Err.Message != "backend down" {
		t.Errorf("err = %+v", out.Err)
	}
}

func TestCollectTruncatedStream(t *testing.T) {
	h := &RunHandle{
		events: make(chan Event, 2),
		done:   make(chan struct{}),
	}
	h.events <- Event{Kind: EventRequestStarted, Seq: 0}
	h.finish(&State{Status: StatusRunning})

	out, err := Collect(context.Background(), h)
	if !errors.Is(err, ErrStreamTruncated) {
		t.Fatalf("err = %v, want ErrStreamTruncated", err)
	}
	if len(out.Trace) != 1 {
		t.Errorf("trace = %v", kinds(out.Trace))
	}
}

func TestCollectContextCancelled(t *testing.T) {
	h := &RunHandle{
		events: make(chan Event),
		done:   make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Collect(ctx, h); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCollectTokenTerminal(t *testing.T) {
	mock := &mockProvider{responses: []GenerateResponse{finalResponse("done")}}
	cfg := testConfig(mock)
	h, err := Start(context.Background(), "hello", cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	out, err := Collect(context.Background(), h)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	// A terminal token yields its snapshot without re-running anything.
	got, err := CollectToken(context.Background(), out.FinalToken, cfg)
	if err != nil {
		t.Fatalf("CollectToken: %v", err)
	}
	if got.Result != "done" || got.TerminationReason != TerminationFinalAnswer {
		t.Errorf("outcome = %+v", got)
	}
	if got.FinalToken != out.FinalToken {
		t.Error("terminal token not carried through")
	}
	if got.Trace != nil {
		t.Error("snapshot outcome has a trace")
	}
	if mock.calls != 1 {
		t.Errorf("model calls = %d, want 1", mock.calls)
	}
}

func TestCollectTokenResumes(t *testing.T) {
	first := &mockProvider{responses: []GenerateResponse{
		toolCallResponse(ToolCall{ID: "c1", Name: "add", Args: json.RawMessage(`{"a":1,"b":2}`)}),
		finalResponse("3"),
	}}
	cfg := testConfig(first, addTool())
	h, err := Start(context.Background(), "what is 1+2?", cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	var suspend string
	for ev := range h.Events() {
		if ev.Kind == EventCheckpoint && ev.Reason == string(CheckpointAfterLLM) {
			suspend = ev.Token
		}
	}
	if suspend == "" {
		t.Fatal("no after_llm checkpoint")
	}

	second := &mockProvider{responses: []GenerateResponse{finalResponse("3 via resume")}}
	cfg2 := testConfig(second, addTool())
	out, err := CollectToken(context.Background(), suspend, cfg2)
	if err != nil {
		t.Fatalf("CollectToken: %v", err)
	}
	if out.Result != "3 via resume" || out.TerminationReason != TerminationFinalAnswer {
		t.Errorf("outcome = %+v", out)
	}
	if len(out.Trace) == 0 {
		t.Error("resumed outcome has no trace")
	}
}

func TestCollectTokenBadToken(t *testing.T) {
	cfg := testConfig(&mockProvider{})
	if _, err := CollectToken(context.Background(), "junk", cfg); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("err = %v, want ErrTokenInvalid", err)
	}
}
