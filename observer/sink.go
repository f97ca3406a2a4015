package observer

import (
	"context"

	reagent "github.com/nevindra/reagent"

	"go.opentelemetry.io/otel/metric"
)

// EventMetrics is a reagent.EventSink that turns run events into OTEL
// metrics. Unlike the provider wrapper it sees the whole run lifecycle:
// terminations by reason, tool outcomes with retry counts, and checkpoints.
//
// Attach it per run:
//
//	h, err := reagent.Start(ctx, query, cfg, reagent.WithEventSink(metrics))
type EventMetrics struct {
	inst *Instruments
}

// NewEventMetrics returns an EventMetrics sink over inst.
func NewEventMetrics(inst *Instruments) *EventMetrics {
	return &EventMetrics{inst: inst}
}

// Publish records metrics for ev. Sinks are called synchronously from the
// run's worker; counter adds are cheap enough to not need a queue here.
func (m *EventMetrics) Publish(ev reagent.Event) {
	ctx := context.Background()
	switch ev.Kind {
	case reagent.EventToolCompleted:
		status := "ok"
		if ev.ToolResult != nil && ev.ToolResult.Error != "" {
			status = "error"
		}
		attrs := metric.WithAttributes(
			AttrToolName.String(ev.ToolName),
			AttrToolStatus.String(status),
		)
		m.inst.ToolExecutions.Add(ctx, 1, attrs)
		m.inst.ToolDuration.Record(ctx, float64(ev.DurationMS), attrs)
		if ev.Attempts > 1 {
			m.inst.ToolRetries.Add(ctx, int64(ev.Attempts-1), attrs)
		}

	case reagent.EventCheckpoint:
		m.inst.Checkpoints.Add(ctx, 1, metric.WithAttributes(
			AttrCheckpointReason.String(ev.Reason),
		))

	case reagent.EventRequestCompleted:
		m.inst.RunExecutions.Add(ctx, 1, metric.WithAttributes(
			AttrRunStatus.String("completed"),
			AttrTerminationReason.String(string(ev.TerminationReason)),
		))

	case reagent.EventRequestFailed:
		m.inst.RunExecutions.Add(ctx, 1, metric.WithAttributes(
			AttrRunStatus.String("failed"),
			AttrTerminationReason.String(string(reagent.TerminationFailed)),
		))

	case reagent.EventRequestCancelled:
		m.inst.RunExecutions.Add(ctx, 1, metric.WithAttributes(
			AttrRunStatus.String("cancelled"),
			AttrTerminationReason.String(string(reagent.TerminationCancelled)),
		))
	}
}

var _ reagent.EventSink = (*EventMetrics)(nil)
