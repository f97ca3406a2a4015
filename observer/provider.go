package observer

import (
	"context"
	"time"

	reagent "github.com/nevindra/reagent"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedProvider wraps a reagent.Provider with OTEL instrumentation:
// one span per model call, plus request counters, duration histograms, and
// token usage.
type ObservedProvider struct {
	inner reagent.Provider
	inst  *Instruments
}

// WrapProvider returns an instrumented provider. Compose it under the retry
// middleware so each underlying attempt gets its own span:
//
//	p := reagent.WithRetry(observer.WrapProvider(openaicompat.New(key, url), inst))
func WrapProvider(inner reagent.Provider, inst *Instruments) *ObservedProvider {
	return &ObservedProvider{inner: inner, inst: inst}
}

func (o *ObservedProvider) Name() string { return o.inner.Name() }

func (o *ObservedProvider) Generate(ctx context.Context, req reagent.GenerateRequest) (reagent.GenerateResponse, error) {
	ctx, span := o.startSpan(ctx, "llm.generate", "generate", req)
	defer span.End()
	start := time.Now()

	resp, err := o.inner.Generate(ctx, req)

	o.record(ctx, span, req, resp, err, time.Since(start), "generate")
	return resp, err
}

func (o *ObservedProvider) GenerateStream(ctx context.Context, req reagent.GenerateRequest, ch chan<- reagent.StreamChunk) (reagent.GenerateResponse, error) {
	ctx, span := o.startSpan(ctx, "llm.generate_stream", "generate_stream", req)
	defer span.End()
	start := time.Now()

	// Count chunks as they pass through without buffering the stream.
	mid := make(chan reagent.StreamChunk, 64)
	counted := make(chan int, 1)
	go func() {
		n := 0
		for c := range mid {
			n++
			ch <- c
		}
		close(ch)
		counted <- n
	}()

	resp, err := o.inner.GenerateStream(ctx, req, mid)
	chunks := <-counted

	span.SetAttributes(AttrStreamChunks.Int(chunks))
	o.record(ctx, span, req, resp, err, time.Since(start), "generate_stream")
	return resp, err
}

func (o *ObservedProvider) startSpan(ctx context.Context, name, method string, req reagent.GenerateRequest) (context.Context, trace.Span) {
	attrs := []trace.SpanStartOption{
		trace.WithAttributes(
			AttrLLMModel.String(req.Model),
			AttrLLMProvider.String(o.inner.Name()),
			AttrLLMMethod.String(method),
		),
	}
	if len(req.Tools) > 0 {
		names := make([]string, len(req.Tools))
		for i, t := range req.Tools {
			names[i] = t.Name
		}
		attrs = append(attrs, trace.WithAttributes(
			AttrToolCount.Int(len(req.Tools)),
			AttrToolNames.StringSlice(names),
		))
	}
	return o.inst.Tracer.Start(ctx, name, attrs...)
}

func (o *ObservedProvider) record(ctx context.Context, span trace.Span, req reagent.GenerateRequest, resp reagent.GenerateResponse, err error, took time.Duration, method string) {
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(
			AttrTokensInput.Int(resp.Usage.InputTokens),
			AttrTokensOutput.Int(resp.Usage.OutputTokens),
		)
	}

	base := metric.WithAttributes(
		AttrLLMModel.String(req.Model),
		AttrLLMProvider.String(o.inner.Name()),
		AttrLLMMethod.String(method),
		AttrLLMStatus.String(status),
	)
	o.inst.LLMRequests.Add(ctx, 1, base)
	o.inst.LLMDuration.Record(ctx, float64(took.Milliseconds()), base)
	if err == nil {
		o.inst.TokenUsage.Add(ctx, int64(resp.Usage.InputTokens+resp.Usage.OutputTokens), base)
	}
}

var _ reagent.Provider = (*ObservedProvider)(nil)
