package reagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// toolOutcome is the terminal result of one pending call in a round.
type toolOutcome struct {
	call     PendingToolCall
	result   ToolResult
	failure  string // one of the ToolFail* classifications, "" on success
	attempts int
	duration time.Duration
}

// content returns the text folded into the Thread for this outcome. Failed
// calls are reported back to the model as error text so it can adapt.
func (o toolOutcome) content() string {
	if o.result.Error != "" {
		return "error: " + o.result.Error
	}
	return o.result.Content
}

// executeRound runs every pending call to a terminal outcome with bounded
// parallelism. A slow or failing call never aborts its siblings; the round
// completes only when all calls have finished. Results are returned in
// request order.
//
// Grounded on the fixed worker-pool dispatch pattern: a buffered work
// channel feeds min(len(calls), concurrency) workers, and the collection
// loop stays context-aware so a torn-down run does not block forever.
func executeRound(ctx context.Context, calls []PendingToolCall, cfg *Config, logger *slog.Logger) []toolOutcome {
	// Fast path: single call, no goroutine needed.
	if len(calls) == 1 {
		return []toolOutcome{runCall(ctx, calls[0], cfg, logger)}
	}

	type indexed struct {
		idx     int
		outcome toolOutcome
	}
	resultCh := make(chan indexed, len(calls))

	type workItem struct {
		idx  int
		call PendingToolCall
	}
	workCh := make(chan workItem, len(calls))
	for i, c := range calls {
		workCh <- workItem{idx: i, call: c}
	}
	close(workCh)

	numWorkers := min(len(calls), cfg.ToolPolicy.Concurrency)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for range numWorkers {
		go func() {
			defer wg.Done()
			for w := range workCh {
				if ctx.Err() != nil {
					resultCh <- indexed{w.idx, toolOutcome{
						call:    w.call,
						result:  ToolResult{Error: ctx.Err().Error()},
						failure: ToolFailError,
					}}
					continue
				}
				resultCh <- indexed{w.idx, runCall(ctx, w.call, cfg, logger)}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	outcomes := make([]toolOutcome, len(calls))
	seen := make([]bool, len(calls))
collect:
	for received := 0; received < len(calls); received++ {
		select {
		case r, ok := <-resultCh:
			if !ok {
				break collect
			}
			outcomes[r.idx] = r.outcome
			seen[r.idx] = true
		case <-ctx.Done():
			break collect
		}
	}
	for i := range outcomes {
		if !seen[i] {
			outcomes[i] = toolOutcome{
				call:    calls[i],
				result:  ToolResult{Error: "result not received: " + contextReason(ctx)},
				failure: ToolFailError,
			}
		}
	}
	return outcomes
}

// runCall executes one pending call to a terminal outcome: resolve, then
// attempt with a per-attempt timeout, retrying timeouts, panics, and
// tool-reported execution errors up to MaxRetries with backoff sleeps.
// Unknown tools and validation failures are terminal on sight.
func runCall(ctx context.Context, call PendingToolCall, cfg *Config, logger *slog.Logger) toolOutcome {
	tool, ok := cfg.Tool(call.Name)
	if !ok {
		return toolOutcome{
			call:    call,
			result:  ToolResult{Error: "unknown tool: " + call.Name},
			failure: ToolFailUnknown,
		}
	}

	pol := cfg.ToolPolicy
	start := time.Now()
	var last toolOutcome
	for attempt := 1; ; attempt++ {
		res, failure := attemptCall(ctx, tool, call.Args, pol.Timeout)
		last = toolOutcome{call: call, result: res, failure: failure, attempts: attempt, duration: time.Since(start)}
		if failure == "" || failure == ToolFailInvalid {
			return last
		}
		if attempt > pol.MaxRetries {
			return last
		}
		logger.Warn("retrying tool call",
			"tool", call.Name,
			"call_id", call.ID,
			"failure", failure,
			"attempt", attempt,
			"max_retries", pol.MaxRetries)
		timer := time.NewTimer(pol.RetryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			last.result = ToolResult{Error: contextReason(ctx)}
			last.duration = time.Since(start)
			return last
		case <-timer.C:
		}
	}
}

// attemptCall makes one attempt with a hard timeout and panic recovery.
// Returns the result plus its failure classification ("" on success).
//
// The tool goroutine only writes its own locals and hands the outcome over
// a buffered channel; an abandoned goroutine can therefore still finish
// (and send into the buffer) after the timeout path has returned without
// touching anything the caller sees.
func attemptCall(ctx context.Context, tool Tool, args json.RawMessage, timeout time.Duration) (ToolResult, string) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type attemptResult struct {
		res     ToolResult
		failure string
	}
	done := make(chan attemptResult, 1)
	go func() {
		var out attemptResult
		defer func() {
			if p := recover(); p != nil {
				out = attemptResult{
					res:     ToolResult{Error: fmt.Sprintf("tool panic: %v", p)},
					failure: ToolFailException,
				}
			}
			done <- out
		}()
		r, err := tool.Run(cctx, args)
		switch {
		case err != nil:
			if errors.Is(err, context.DeadlineExceeded) {
				out.res = ToolResult{Error: "tool timed out after " + timeout.String()}
				out.failure = ToolFailTimeout
			} else {
				out.res = ToolResult{Error: err.Error()}
				out.failure = ToolFailException
			}
		case r.Invalid:
			out.res = r
			if out.res.Error == "" {
				out.res.Error = "invalid arguments"
			}
			out.failure = ToolFailInvalid
		case r.Error != "":
			out.res = r
			out.failure = ToolFailError
		default:
			out.res = r
		}
	}()

	select {
	case a := <-done:
		return a.res, a.failure
	case <-cctx.Done():
		// The tool ignored its context; abandon the goroutine rather than
		// block the round. Its eventual result is discarded.
		if ctx.Err() != nil {
			return ToolResult{Error: contextReason(ctx)}, ToolFailError
		}
		return ToolResult{Error: "tool timed out after " + timeout.String()}, ToolFailTimeout
	}
}

func contextReason(ctx context.Context) string {
	if err := ctx.Err(); err != nil {
		return err.Error()
	}
	return "context done"
}
