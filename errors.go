package reagent

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrLLM reports a failure inside a model provider.
type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP reports a non-200 response from a provider's HTTP API.
// RetryAfter carries the parsed Retry-After header when the server sent one.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses a Retry-After header value (delay-seconds form).
// Returns 0 for empty or unparseable values.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// ErrConfigInvalid is wrapped by every BuildConfig validation failure.
var ErrConfigInvalid = errors.New("config invalid")

// Token decode failures. Every failure mode matches ErrTokenInvalid via
// errors.Is, and exactly one of the narrow sentinels below.
var (
	ErrTokenInvalid     = errors.New("token invalid")
	ErrTokenMalformed   = fmt.Errorf("%w: malformed", ErrTokenInvalid)
	ErrTokenSignature   = fmt.Errorf("%w: signature mismatch", ErrTokenInvalid)
	ErrTokenExpired     = fmt.Errorf("%w: expired", ErrTokenInvalid)
	ErrTokenFingerprint = fmt.Errorf("%w: config fingerprint mismatch", ErrTokenInvalid)
)

// ErrStreamTruncated is returned by Collect when the event stream ends
// without a terminal event, meaning the worker died before finishing.
var ErrStreamTruncated = errors.New("event stream ended without terminal event")

// ErrRunTerminal is returned by Continue when the decoded token already
// holds a terminal state and there is nothing left to resume. Use Collect
// on the token instead.
var ErrRunTerminal = errors.New("run already terminal")

// Error types carried by request_failed events and State.Error.Type.
const (
	ErrorTypeLLMRequest = "llm_request"
	ErrorTypeLLMStream  = "llm_stream"
)

// Failure classifications for individual tool calls. These never fail the
// run; they are reported in the tool's result and fed back to the model.
const (
	ToolFailUnknown   = "unknown_tool"
	ToolFailTimeout   = "tool_timeout"
	ToolFailError     = "tool_execution_error"
	ToolFailException = "tool_exception"
	ToolFailInvalid   = "tool_invalid_args"
)

// RunError is the serializable structured error recorded in State when a
// run fails.
type RunError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}
