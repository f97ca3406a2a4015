// Package reagent implements an LLM-driven reason-then-act execution engine.
//
// Given a query, a Provider, and a catalog of tools, a run iteratively asks
// the model for either a final answer or a set of tool invocations, executes
// the requested tools with bounded concurrency, feeds the results back, and
// repeats until a final answer, a failure, a cancellation, or the iteration
// ceiling is reached.
//
// A run executes on its own background goroutine and communicates through an
// ordered, finite event stream:
//
//	cfg, err := reagent.BuildConfig(reagent.ConfigInput{
//	    Model:       "gpt-4.1-mini",
//	    Provider:    provider,
//	    Tools:       []reagent.Tool{calcTool},
//	    TokenPolicy: reagent.TokenPolicy{SigningSecret: secret},
//	})
//	handle, err := reagent.Start(ctx, "What is 2+2?", cfg)
//	for ev := range handle.Events() {
//	    // ev.Seq is strictly increasing; the stream closes after the
//	    // terminal event (request_completed / request_failed / request_cancelled).
//	}
//
// Every checkpoint the engine takes is issued as a signed, TTL-bound Token
// that encodes the full run State plus a fingerprint of the Config that
// produced it. Tokens can be persisted anywhere and later handed to Continue
// to resume the run in a different process, or to Cancel to terminate it
// without resuming. Collect drains a stream (or a token) into a single
// aggregate outcome.
//
// Subpackages provide the surrounding infrastructure: provider/openaicompat
// speaks the OpenAI-compatible chat completions API, observer wires
// OpenTelemetry tracing and metrics, and store/sqlite plus store/postgres
// persist checkpoint tokens.
package reagent
