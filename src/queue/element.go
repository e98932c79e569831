package queue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	// ErrTimeout means an attempt hit its deadline without a matching response.
	ErrTimeout = errors.New("queue: response timeout")
	// ErrTransport wraps connection and codec failures.
	ErrTransport = errors.New("queue: transport failure")
	// ErrAttemptsExhausted is wrapped by the error Enqueue returns once every
	// attempt failed.
	ErrAttemptsExhausted = errors.New("queue: attempts exhausted")
)

const (
	DefaultTimeout  = 15 * time.Second
	DefaultAttempts = 3
)

// Transport performs one request/response attempt, bounded by ctx. It must
// return ErrTimeout (wrapped) when ctx expires and ErrTransport (wrapped) for
// anything else that went wrong on the wire.
type Transport interface {
	RoundTrip(ctx context.Context, req Request, match Matcher) (string, error)
}

// Element is one queued request with its retry policy.
type Element struct {
	Request  Request
	Match    Matcher
	Timeout  time.Duration
	Attempts int
}

// NewElement returns an element with the default 15s timeout and 3 attempts.
func NewElement(req Request, match Matcher) *Element {
	return &Element{
		Request:  req,
		Match:    match,
		Timeout:  DefaultTimeout,
		Attempts: DefaultAttempts,
	}
}

// Enqueue sends the element through t and waits for the matched payload. Each
// attempt gets its own Timeout. Retries stop as soon as ctx is done.
func (e *Element) Enqueue(ctx context.Context, t Transport) (string, error) {
	attempts := e.Attempts
	if attempts < 1 {
		attempts = 1
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	match := e.Match
	if match == nil {
		match = MatchTag(ResponseTag(e.Request.Msg))
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		payload, err := e.attempt(ctx, t, match, timeout)
		if err == nil {
			return payload, nil
		}
		// Parent cancellation is not worth retrying.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
	}
	return "", fmt.Errorf("%w: %q after %d attempts: %w", ErrAttemptsExhausted, e.Request.Msg, attempts, lastErr)
}

func (e *Element) attempt(ctx context.Context, t Transport, match Matcher, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := t.RoundTrip(ctx, e.Request, match)
	if err != nil {
		if errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransport) {
			return "", err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return payload, nil
}

// classify tags a wire error as a timeout when ctx expired or the socket
// deadline fired, and as a transport failure otherwise.
func classify(ctx context.Context, err error) error {
	var netErr net.Error
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}
