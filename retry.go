package reagent

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// retryProvider wraps a Provider and automatically retries transient HTTP
// errors (429 Too Many Requests, 503 Service Unavailable) with exponential
// backoff. This sits below the engine: errors that survive the middleware
// still fail the run.
type retryProvider struct {
	inner       Provider
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// RetryOption configures WithRetry.
type RetryOption func(*retryProvider)

// RetryMaxAttempts sets the maximum number of attempts (default: 3).
func RetryMaxAttempts(n int) RetryOption {
	return func(r *retryProvider) { r.maxAttempts = n }
}

// RetryBaseDelay sets the initial backoff delay before the second attempt
// (default: 1s). Each subsequent delay doubles.
func RetryBaseDelay(d time.Duration) RetryOption {
	return func(r *retryProvider) { r.baseDelay = d }
}

// RetryLogger sets the structured logger for retry events.
func RetryLogger(l *slog.Logger) RetryOption {
	return func(r *retryProvider) { r.logger = l }
}

// WithRetry wraps p with automatic retry on transient HTTP errors. Retries
// use exponential backoff with jitter; a server-sent Retry-After duration is
// honored as a floor. Compose with any Provider:
//
//	p = reagent.WithRetry(openaicompat.New(apiKey, baseURL))
func WithRetry(p Provider, opts ...RetryOption) Provider {
	r := &retryProvider{inner: p, maxAttempts: 3, baseDelay: time.Second}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = nopLogger
	}
	return r
}

func (r *retryProvider) Name() string { return r.inner.Name() }

func (r *retryProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	var last error
	for i := 0; i < r.maxAttempts; i++ {
		resp, err := r.inner.Generate(ctx, req)
		if err == nil || !isTransient(err) {
			return resp, err
		}
		last = err
		r.logger.Warn("retrying transient error",
			"provider", r.inner.Name(),
			"status", statusOf(err),
			"attempt", i+1,
			"max_attempts", r.maxAttempts)
		if i < r.maxAttempts-1 {
			if err := sleepRetry(ctx, retryDelay(r.baseDelay, i, err)); err != nil {
				return GenerateResponse{}, err
			}
		}
	}
	r.logger.Error("all retry attempts exhausted",
		"provider", r.inner.Name(), "attempts", r.maxAttempts, "error", last)
	return GenerateResponse{}, last
}

// GenerateStream retries only while no chunks have been forwarded yet — once
// streaming has started, errors pass through immediately to avoid sending
// duplicate content. ch is always closed before returning.
func (r *retryProvider) GenerateStream(ctx context.Context, req GenerateRequest, ch chan<- StreamChunk) (GenerateResponse, error) {
	defer close(ch)
	var last error
	for i := 0; i < r.maxAttempts; i++ {
		mid := make(chan StreamChunk, 64)
		var (
			resp      GenerateResponse
			streamErr error
		)
		done := make(chan struct{})
		go func() {
			defer close(done)
			resp, streamErr = r.inner.GenerateStream(ctx, req, mid)
		}()

		var chunksSent bool
		for c := range mid {
			chunksSent = true
			ch <- c
		}
		<-done

		if streamErr == nil || !isTransient(streamErr) || chunksSent {
			return resp, streamErr
		}
		last = streamErr
		r.logger.Warn("retrying transient error (stream)",
			"provider", r.inner.Name(),
			"status", statusOf(streamErr),
			"attempt", i+1,
			"max_attempts", r.maxAttempts)
		if i < r.maxAttempts-1 {
			if err := sleepRetry(ctx, retryDelay(r.baseDelay, i, streamErr)); err != nil {
				return GenerateResponse{}, err
			}
		}
	}
	r.logger.Error("all retry attempts exhausted (stream)",
		"provider", r.inner.Name(), "attempts", r.maxAttempts, "error", last)
	return GenerateResponse{}, last
}

// sleepRetry waits for d or until ctx is done.
func sleepRetry(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isTransient reports whether err is a retryable HTTP error (429 or 503).
func isTransient(err error) bool {
	var e *ErrHTTP
	return errors.As(err, &e) && (e.Status == 429 || e.Status == 503)
}

func statusOf(err error) int {
	var e *ErrHTTP
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// retryDelay computes the backoff before retry i, using the server's
// Retry-After value (if present) as a minimum.
func retryDelay(base time.Duration, i int, err error) time.Duration {
	backoff := retryBackoff(base, i)
	var e *ErrHTTP
	if errors.As(err, &e) && e.RetryAfter > backoff {
		return e.RetryAfter
	}
	return backoff
}

// retryBackoff returns the delay for retry i (0-indexed).
// Exponential: base * 2^i, plus up to 50% random jitter.
func retryBackoff(base time.Duration, i int) time.Duration {
	exp := base * (1 << i)
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	return exp + jitter
}

var _ Provider = (*retryProvider)(nil)
