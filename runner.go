package reagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// maxIterationsResult is the fixed result text for runs that hit the
// iteration ceiling without a final answer. A soft success, not a failure.
const maxIterationsResult = "Maximum iterations reached before a final answer was produced."

// redactedArgs replaces tool arguments in tool_started events when
// Observability.RedactToolArgs is set.
var redactedArgs = json.RawMessage(`"[redacted]"`)

// runOptions holds per-run knobs supplied via RunOption.
type runOptions struct {
	runID       string
	requestID   string
	logger      *slog.Logger
	tracer      Tracer
	sink        EventSink
	store       CheckpointStore
	toolMeta    map[string]any
	eventBuffer int
}

// RunOption configures Start and Continue.
type RunOption func(*runOptions)

// WithRunID sets a caller-chosen run identifier (default: new UUIDv7).
func WithRunID(id string) RunOption {
	return func(o *runOptions) { o.runID = id }
}

// WithRequestID sets a caller-chosen request identifier (default: new UUIDv7).
func WithRequestID(id string) RunOption {
	return func(o *runOptions) { o.requestID = id }
}

// WithLogger sets the structured logger for run lifecycle and retry logs.
// If not set, logs are discarded.
func WithLogger(l *slog.Logger) RunOption {
	return func(o *runOptions) { o.logger = l }
}

// WithTracer enables span creation around iterations, model calls, and tool
// rounds. The observer package provides an OTEL-backed implementation.
func WithTracer(t Tracer) RunOption {
	return func(o *runOptions) { o.tracer = t }
}

// WithEventSink mirrors every event into sink, fire-and-forget, in addition
// to the run's own stream. Useful for cross-process observation buses.
func WithEventSink(s EventSink) RunOption {
	return func(o *runOptions) { o.sink = s }
}

// WithCheckpointStore persists every issued checkpoint token, best-effort.
// Store failures are logged and never fail the run.
func WithCheckpointStore(s CheckpointStore) RunOption {
	return func(o *runOptions) { o.store = s }
}

// WithToolMetadata attaches caller metadata forwarded verbatim to every tool
// invocation via ToolContext.
func WithToolMetadata(meta map[string]any) RunOption {
	return func(o *runOptions) { o.toolMeta = meta }
}

// WithEventBuffer overrides the event channel capacity (default 64).
func WithEventBuffer(n int) RunOption {
	return func(o *runOptions) { o.eventBuffer = n }
}

func applyRunOptions(opts []RunOption) runOptions {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = nopLogger
	}
	if o.eventBuffer <= 0 {
		o.eventBuffer = 64
	}
	return o
}

// Start launches a fresh run for query on a background goroutine and returns
// immediately with a handle to its event stream. The parent ctx controls the
// worker's lifetime; cancelling it is a best-effort teardown signal.
func Start(ctx context.Context, query string, cfg *Config, opts ...RunOption) (*RunHandle, error) {
	if cfg == nil || cfg.fingerprint == "" {
		return nil, fmt.Errorf("%w: config must come from BuildConfig", ErrConfigInvalid)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrConfigInvalid)
	}
	o := applyRunOptions(opts)
	if o.runID == "" {
		o.runID = NewID()
	}
	if o.requestID == "" {
		o.requestID = NewID()
	}
	state := newState(o.runID, o.requestID, cfg.SystemPrompt, query)
	return spawnRun(ctx, cfg, state, o), nil
}

// Continue resumes a run from a checkpoint token. It fails with one of the
// ErrToken* errors rather than silently starting fresh, and with
// ErrRunTerminal when the token already holds a finished run (use Collect
// for those). The resumed stream continues the event sequence counter from
// the restored state.
func Continue(ctx context.Context, token string, cfg *Config, opts ...RunOption) (*RunHandle, error) {
	if cfg == nil || cfg.fingerprint == "" {
		return nil, fmt.Errorf("%w: config must come from BuildConfig", ErrConfigInvalid)
	}
	cp, err := DecodeToken(token, cfg)
	if err != nil {
		return nil, err
	}
	if cp.State.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: status %s", ErrRunTerminal, cp.State.Status)
	}
	o := applyRunOptions(opts)
	if o.requestID != "" {
		cp.State.RequestID = o.requestID
	}
	return spawnRun(ctx, cfg, cp.State, o), nil
}

func spawnRun(ctx context.Context, cfg *Config, state *State, o runOptions) *RunHandle {
	h := &RunHandle{
		runID:     state.RunID,
		requestID: state.RequestID,
		events:    make(chan Event, o.eventBuffer),
		cancelReq: make(chan string, 1),
		done:      make(chan struct{}),
	}
	r := &run{cfg: cfg, state: state, opts: o, logger: o.logger, handle: h}
	go r.loop(ctx)
	return h
}

// run is the per-run coordinator. It owns the State exclusively; nothing
// else reads or writes it while the worker is live.
type run struct {
	cfg    *Config
	state  *State
	opts   runOptions
	logger *slog.Logger
	handle *RunHandle
}

// loop drives the state machine until a terminal status. It is the only
// goroutine that emits events, which is what makes Seq strictly ordered.
func (r *run) loop(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			// A panic here is an engine bug; surface what we can. The
			// stream ends without a terminal event, which Collect reports
			// as an abnormal termination.
			r.logger.Error("run worker panic", "run", r.state.RunID, "panic", fmt.Sprintf("%v", p))
		}
		r.handle.finish(r.state)
	}()

	start := time.Now()
	r.logger.Info("run started",
		"run", r.state.RunID,
		"request", r.state.RequestID,
		"model", r.cfg.Model,
		"iteration", r.state.Iteration)

	r.emit(ctx, Event{
		Kind:              EventRequestStarted,
		Query:             r.state.firstUserQuery(),
		ConfigFingerprint: r.cfg.Fingerprint(),
	})

	for {
		if r.state.Status.IsTerminal() {
			break
		}
		if reason, ok := r.checkCancel(ctx); ok {
			r.finishCancelled(ctx, reason)
			break
		}

		if r.state.Status == StatusAwaitingTools {
			if len(r.state.PendingToolCalls) > 0 {
				r.toolRound(ctx)
				continue
			}
			// Nothing pending despite the status; fall through to the model.
			r.state.Status = StatusRunning
		}

		if r.state.Iteration >= r.cfg.MaxIterations {
			r.finishMaxIterations(ctx)
			break
		}

		if r.modelTurn(ctx) {
			break
		}
	}

	r.logger.Info("run finished",
		"run", r.state.RunID,
		"status", string(r.state.Status),
		"iterations", r.state.Iteration,
		"duration", time.Since(start),
		"tokens.input", r.state.Usage.InputTokens,
		"tokens.output", r.state.Usage.OutputTokens)
}

// checkCancel observes a cooperative cancel signal: either an explicit
// Cancel(reason) on the handle, or the parent context being torn down.
// Checked at loop boundaries only; in-flight calls are never pre-empted.
func (r *run) checkCancel(ctx context.Context) (string, bool) {
	select {
	case reason := <-r.handle.cancelReq:
		return reason, true
	default:
	}
	if err := ctx.Err(); err != nil {
		return err.Error(), true
	}
	return "", false
}

// modelTurn requests one model turn and applies the resulting transition.
// Returns true when the run reached a terminal state.
func (r *run) modelTurn(ctx context.Context) bool {
	callID := NewID()
	r.state.LastLLMCallID = callID
	msgs := r.state.Thread.Messages(r.cfg.SystemPrompt)

	startEv := Event{Kind: EventLLMStarted, LLMCallID: callID, Model: r.cfg.Model, MessageCount: len(msgs)}
	if r.cfg.Observability.CaptureMessages {
		startEv.Messages = msgs
	}
	r.emit(ctx, startEv)

	turnCtx := ctx
	var span Span
	if r.opts.tracer != nil {
		turnCtx, span = r.opts.tracer.Start(ctx, "run.llm",
			StringAttr("model", r.cfg.Model),
			IntAttr("iteration", r.state.Iteration),
			IntAttr("message_count", len(msgs)))
		defer span.End()
	}

	req := GenerateRequest{
		Model:       r.cfg.Model,
		Messages:    msgs,
		Tools:       r.cfg.ToolDefinitions(),
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	}
	cctx, cancel := context.WithTimeout(turnCtx, r.cfg.LLMTimeout)
	defer cancel()

	var resp GenerateResponse
	var err error
	errType := ErrorTypeLLMRequest
	if r.cfg.Streaming {
		errType = ErrorTypeLLMStream
		// The provider writes chunks from its own goroutine; deltas are
		// re-emitted here so this loop stays the only event producer.
		ch := make(chan StreamChunk, 64)
		callDone := make(chan struct{})
		go func() {
			defer close(callDone)
			resp, err = r.cfg.Provider.GenerateStream(cctx, req, ch)
		}()
		for chunk := range ch {
			if !r.cfg.Observability.CaptureDeltas {
				continue
			}
			if chunk.Type == ChunkThinking && !r.cfg.Observability.CaptureThinking {
				continue
			}
			r.emit(ctx, Event{Kind: EventLLMDelta, LLMCallID: callID, ChunkType: chunk.Type, Delta: chunk.Delta})
		}
		<-callDone
	} else {
		resp, err = r.cfg.Provider.Generate(cctx, req)
	}
	if err != nil {
		if span != nil {
			span.Error(err)
		}
		r.finishFailed(ctx, errType, err)
		return true
	}

	r.state.Usage.Add(resp.Usage)

	thinking := resp.Thinking
	if !r.cfg.Observability.CaptureThinking {
		thinking = ""
	}
	turnType := "final"
	if len(resp.ToolCalls) > 0 {
		turnType = "tool_calls"
	}
	usage := resp.Usage
	r.emit(ctx, Event{
		Kind:      EventLLMCompleted,
		LLMCallID: callID,
		TurnType:  turnType,
		Text:      resp.Text,
		Thinking:  thinking,
		ToolCalls: resp.ToolCalls,
		Usage:     &usage,
	})

	if len(resp.ToolCalls) > 0 {
		r.state.Thread.AppendAssistant(resp.Text, resp.ToolCalls, thinking)
		pending := make([]PendingToolCall, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			id := tc.ID
			if id == "" {
				id = NewID()
			}
			pending[i] = PendingToolCall{ID: id, Name: tc.Name, Args: tc.Args}
		}
		r.state.PendingToolCalls = pending
		r.state.Status = StatusAwaitingTools
		r.checkpoint(ctx, CheckpointAfterLLM)
		return false
	}

	r.state.Thread.AppendAssistant(resp.Text, nil, thinking)
	r.state.Status = StatusCompleted
	r.state.Result = resp.Text
	r.state.TerminationReason = TerminationFinalAnswer
	r.checkpoint(ctx, CheckpointTerminal)
	r.emitCompleted(ctx)
	return true
}

// toolRound executes every pending call to a terminal outcome, folds the
// results into the Thread, and advances the iteration counter. The round
// always runs to completion; cancellation is observed afterwards at the
// next loop top.
func (r *run) toolRound(ctx context.Context) {
	calls := r.state.PendingToolCalls

	roundCtx := ctx
	var span Span
	if r.opts.tracer != nil {
		roundCtx, span = r.opts.tracer.Start(ctx, "run.tool_round",
			IntAttr("iteration", r.state.Iteration),
			IntAttr("tool_count", len(calls)))
		defer span.End()
	}

	for _, c := range calls {
		args := c.Args
		if r.cfg.Observability.RedactToolArgs {
			args = redactedArgs
		}
		r.emit(ctx, Event{Kind: EventToolStarted, ToolCallID: c.ID, ToolName: c.Name, Arguments: args})
	}

	if r.opts.toolMeta != nil {
		roundCtx = WithToolContext(roundCtx, r.opts.toolMeta)
	}
	outcomes := executeRound(roundCtx, calls, r.cfg, r.logger)

	for _, o := range outcomes {
		r.state.Thread.AppendToolResult(o.call.ID, o.call.Name, o.content())
		res := o.result
		r.emit(ctx, Event{
			Kind:       EventToolCompleted,
			ToolCallID: o.call.ID,
			ToolName:   o.call.Name,
			ToolResult: &res,
			Attempts:   o.attempts,
			DurationMS: o.duration.Milliseconds(),
		})
	}

	r.state.PendingToolCalls = nil
	r.state.Iteration++
	r.state.Status = StatusRunning
	r.checkpoint(ctx, CheckpointAfterTools)
}

func (r *run) finishMaxIterations(ctx context.Context) {
	r.logger.Warn("max iterations reached", "run", r.state.RunID, "iterations", r.state.Iteration)
	r.state.Status = StatusCompleted
	r.state.Result = maxIterationsResult
	r.state.TerminationReason = TerminationMaxIterations
	r.checkpoint(ctx, CheckpointTerminal)
	r.emitCompleted(ctx)
}

func (r *run) finishFailed(ctx context.Context, errType string, err error) {
	r.logger.Error("model call failed", "run", r.state.RunID, "error_type", errType, "error", err)
	r.state.Status = StatusFailed
	r.state.TerminationReason = TerminationFailed
	r.state.Error = &RunError{Type: errType, Message: err.Error()}
	r.checkpoint(ctx, CheckpointTerminal)
	r.emit(ctx, Event{Kind: EventRequestFailed, Error: err.Error(), ErrorType: errType})
}

func (r *run) finishCancelled(ctx context.Context, reason string) {
	r.logger.Info("run cancelled", "run", r.state.RunID, "reason", reason)
	r.state.Status = StatusCancelled
	r.state.TerminationReason = TerminationCancelled
	r.state.Result = cancelResult(reason)
	r.checkpoint(ctx, CheckpointCancelled)
	r.emit(ctx, Event{Kind: EventRequestCancelled, Reason: reason})
}

func (r *run) emitCompleted(ctx context.Context) {
	usage := r.state.Usage
	r.emit(ctx, Event{
		Kind:              EventRequestCompleted,
		Result:            r.state.Result,
		TerminationReason: r.state.TerminationReason,
		Usage:             &usage,
	})
}

// checkpoint issues a token for the current state and emits it as a
// checkpoint event. The event's own sequence number is reserved before the
// token is issued, so a resumed stream continues cleanly after it.
func (r *run) checkpoint(ctx context.Context, reason CheckpointReason) {
	seq := r.state.NextSeq
	r.state.NextSeq = seq + 1

	tok, err := IssueToken(r.state, r.cfg, reason)
	if err != nil {
		r.logger.Warn("checkpoint issue failed", "run", r.state.RunID, "reason", string(reason), "error", err)
		return
	}

	ev := Event{Kind: EventCheckpoint, Token: tok, Reason: string(reason)}
	r.stamp(&ev)
	ev.Seq = seq
	r.send(ctx, ev)

	if r.opts.store != nil {
		rec := CheckpointRecord{
			RunID:     r.state.RunID,
			RequestID: r.state.RequestID,
			Status:    r.state.Status,
			Reason:    reason,
			Token:     tok,
			IssuedAt:  NowUnixMilli(),
		}
		if err := r.opts.store.SaveCheckpoint(ctx, rec); err != nil {
			r.logger.Warn("checkpoint store save failed", "run", r.state.RunID, "error", err)
		}
	}
}

// emit allocates the next sequence number and delivers the event.
func (r *run) emit(ctx context.Context, ev Event) {
	r.stamp(&ev)
	ev.Seq = r.state.NextSeq
	r.state.NextSeq++
	r.send(ctx, ev)
}

func (r *run) stamp(ev *Event) {
	ev.RunID = r.state.RunID
	ev.RequestID = r.state.RequestID
	ev.Iteration = r.state.Iteration
}

// send delivers the event to the sink (fire-and-forget) and the stream.
// When intermediate events are disabled, terminal and checkpoint events
// still flow so Collect and resume keep working. The stream send blocks for
// backpressure, bailing out only when the worker context dies.
func (r *run) send(ctx context.Context, ev Event) {
	if r.opts.sink != nil {
		r.opts.sink.Publish(ev)
	}
	if !r.cfg.Observability.EmitEvents && !ev.Kind.IsTerminal() && ev.Kind != EventCheckpoint {
		return
	}
	select {
	case r.handle.events <- ev:
	case <-ctx.Done():
	}
}
