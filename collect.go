package reagent

import "context"

// RunOutcome is the aggregate result of a drained run.
type RunOutcome struct {
	Result            string
	TerminationReason TerminationReason
	Usage             Usage
	// FinalToken is the last checkpoint token observed; for finished runs
	// this is the terminal checkpoint. Empty only if no checkpoint was
	// ever taken.
	FinalToken string
	// Err is the structured error for failed runs, nil otherwise.
	Err *RunError
	// Trace holds every event consumed while draining, in order. Nil when
	// the outcome came from a token rather than a stream.
	Trace []Event
}

// Collect drains the handle's event stream into a single outcome. It blocks
// until the stream closes. If the stream ends without a terminal event the
// outcome carries whatever was observed and the error is ErrStreamTruncated.
func Collect(ctx context.Context, h *RunHandle) (RunOutcome, error) {
	var out RunOutcome
	sawTerminal := false
	for {
		select {
		case ev, ok := <-h.Events():
			if !ok {
				if !sawTerminal {
					return out, ErrStreamTruncated
				}
				return out, nil
			}
			out.Trace = append(out.Trace, ev)
			switch ev.Kind {
			case EventCheckpoint:
				out.FinalToken = ev.Token
			case EventRequestCompleted:
				sawTerminal = true
				out.Result = ev.Result
				out.TerminationReason = ev.TerminationReason
				if ev.Usage != nil {
					out.Usage = *ev.Usage
				}
			case EventRequestFailed:
				sawTerminal = true
				out.TerminationReason = TerminationFailed
				out.Err = &RunError{Type: ev.ErrorType, Message: ev.Error}
			case EventRequestCancelled:
				sawTerminal = true
				out.TerminationReason = TerminationCancelled
				out.Result = cancelResult(ev.Reason)
			}
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
}

// CollectToken produces an outcome from a checkpoint token. A terminal token
// yields its decoded snapshot directly, without resuming execution. A
// non-terminal token is resumed via Continue and drained to completion.
func CollectToken(ctx context.Context, token string, cfg *Config, opts ...RunOption) (RunOutcome, error) {
	cp, err := DecodeToken(token, cfg)
	if err != nil {
		return RunOutcome{}, err
	}
	if cp.State.Status.IsTerminal() {
		return RunOutcome{
			Result:            cp.State.Result,
			TerminationReason: cp.State.TerminationReason,
			Usage:             cp.State.Usage,
			FinalToken:        token,
			Err:               cp.State.Error,
		}, nil
	}
	h, err := Continue(ctx, token, cfg, opts...)
	if err != nil {
		return RunOutcome{}, err
	}
	return Collect(ctx, h)
}
