package reagent

import "context"

// RunHandle tracks one background run. The caller interacts with the run
// only through the event stream and the cooperative cancel signal.
// All methods are safe for concurrent use, but the event stream itself is
// single-consumer.
type RunHandle struct {
	runID     string
	requestID string
	events    chan Event
	cancelReq chan string
	done      chan struct{}
	// final is written by the worker before done closes; the channel close
	// is the happens-before barrier for readers.
	final *State
}

// RunID returns the run identifier (stable across suspend/resume).
func (h *RunHandle) RunID() string { return h.runID }

// RequestID returns this invocation's request identifier.
func (h *RunHandle) RequestID() string { return h.requestID }

// Events returns the run's ordered, finite event stream. The channel closes
// after the terminal event — or without one if the worker was torn down,
// which consumers must treat as an abnormal termination.
func (h *RunHandle) Events() <-chan Event { return h.events }

// Cancel requests cooperative cancellation with a reason. Non-blocking; the
// first reason wins, later calls are no-ops. The signal is observed at the
// next loop boundary: an in-flight model call or tool round finishes first
// and its results are discarded.
func (h *RunHandle) Cancel(reason string) {
	select {
	case h.cancelReq <- reason:
	default:
	}
}

// Done returns a channel closed when the worker exits (any terminal state
// or teardown). Composable with select across handles.
func (h *RunHandle) Done() <-chan struct{} { return h.done }

// FinalState returns the run's last state snapshot once the worker has
// exited. Before that it returns (nil, false).
func (h *RunHandle) FinalState() (*State, bool) {
	select {
	case <-h.done:
		return h.final, true
	default:
		return nil, false
	}
}

// Await blocks until the worker exits or ctx is cancelled.
func (h *RunHandle) Await(ctx context.Context) (*State, error) {
	select {
	case <-h.done:
		return h.final, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// finish publishes the final state and closes the stream. Called exactly
// once, by the worker, as its last act.
func (h *RunHandle) finish(final *State) {
	h.final = final
	close(h.events)
	close(h.done)
}
