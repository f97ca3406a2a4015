package reagent

import "encoding/json"

// Status is the run's position in its state machine.
type Status string

const (
	// StatusRunning means the next step is a model turn.
	StatusRunning Status = "running"
	// StatusAwaitingTools means the last model turn requested tool calls
	// that have not been executed yet.
	StatusAwaitingTools Status = "awaiting_tools"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCancelled     Status = "cancelled"
)

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// TerminationReason classifies why a run stopped.
type TerminationReason string

const (
	TerminationFinalAnswer   TerminationReason = "final_answer"
	TerminationMaxIterations TerminationReason = "max_iterations"
	TerminationFailed        TerminationReason = "failed"
	TerminationCancelled     TerminationReason = "cancelled"
)

// PendingToolCall is the lifecycle record for one requested tool invocation.
// It is created when a model turn requests tools and cleared once its result
// has been folded into the Thread.
type PendingToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// State is the serializable snapshot of a run. It is owned exclusively by
// the run's worker goroutine; external code only ever sees it through a
// decoded checkpoint token or the final collected outcome.
type State struct {
	RunID     string `json:"run_id"`
	RequestID string `json:"request_id"`

	Thread           Thread            `json:"thread"`
	Status           Status            `json:"status"`
	Iteration        int               `json:"iteration"`
	PendingToolCalls []PendingToolCall `json:"pending_tool_calls,omitempty"`

	Usage         Usage  `json:"usage"`
	LastLLMCallID string `json:"last_llm_call_id,omitempty"`

	// Result is the final answer text, empty until the run is terminal.
	Result            string            `json:"result,omitempty"`
	TerminationReason TerminationReason `json:"termination_reason,omitempty"`
	// Error is set only when Status is failed.
	Error *RunError `json:"error,omitempty"`

	// NextSeq is the event sequence counter; a resumed run's stream
	// continues from here.
	NextSeq int64 `json:"next_seq"`
}

// newState creates the initial snapshot for a fresh run.
func newState(runID, requestID, systemPrompt, query string) *State {
	thread := NewThread(systemPrompt)
	thread.AppendUser(query)
	return &State{
		RunID:     runID,
		RequestID: requestID,
		Thread:    thread,
		Status:    StatusRunning,
	}
}

// Clone deep-copies the state so token payloads and collected outcomes never
// alias the worker's live data.
func (s *State) Clone() *State {
	cp := *s
	cp.Thread = s.Thread.clone()
	if len(s.PendingToolCalls) > 0 {
		cp.PendingToolCalls = make([]PendingToolCall, len(s.PendingToolCalls))
		for i, p := range s.PendingToolCalls {
			cp.PendingToolCalls[i] = p
			if len(p.Args) > 0 {
				cp.PendingToolCalls[i].Args = append([]byte(nil), p.Args...)
			}
		}
	}
	if s.Error != nil {
		e := *s.Error
		cp.Error = &e
	}
	return &cp
}

// firstUserQuery returns the content of the earliest user entry. Used for
// request_started events on fresh and resumed streams.
func (s *State) firstUserQuery() string {
	for _, m := range s.Thread.Entries {
		if m.Role == "user" {
			return m.Content
		}
	}
	return ""
}
