// Package retry wraps failsafe-go's retry policy builder with the backoff
// shape both external collaborators in this repo share (remote subtitle
// search/download, remote ASR requests): exponential backoff with a
// configurable base, cap and factor, aborting on context cancellation.
package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// Policy is the backoff shape for one external collaborator.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
}

// Default is base 1s, factor 2, cap 60s, 3 attempts — the search-call
// tuning. Download call sites override MaxAttempts to 5.
func Default() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 60 * time.Second, Factor: 2}
}

// OnRetry is invoked before each retry sleep, for logging.
type OnRetry func(attempt int, err error)

// Do runs fn under p's retry policy, retrying only errors isRetriable
// accepts (IsTransient when isRetriable is nil).
func Do[R any](ctx context.Context, p Policy, isRetriable func(error) bool, onRetry OnRetry, fn func(ctx context.Context) (R, error)) (R, error) {
	if isRetriable == nil {
		isRetriable = IsTransient
	}
	builder := retrypolicy.Builder[R]().
		HandleIf(func(_ R, err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return false
			}
			return isRetriable(err)
		}).
		AbortOnErrors(context.Canceled).
		WithMaxAttempts(p.MaxAttempts).
		ReturnLastFailure().
		WithBackoffFactor(p.BaseDelay, p.MaxDelay, p.Factor)
	if onRetry != nil {
		builder = builder.OnRetry(func(evt failsafe.ExecutionEvent[R]) {
			onRetry(evt.Attempts(), evt.LastError())
		})
	}
	policy := builder.Build()

	return failsafe.Get(func() (R, error) {
		return fn(ctx)
	}, policy)
}

// IsTransient classifies network timeouts, resets, and HTTP 429/5xx-shaped
// error strings as retriable — the same heuristic the teacher's
// OpenSubtitles client uses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	message := strings.ToLower(err.Error())
	tokens := []string{
		"429", "rate limit", "timeout", "deadline exceeded",
		"connection reset", "connection refused", "temporary failure",
		"502", "503", "504",
	}
	for _, token := range tokens {
		if strings.Contains(message, token) {
			return true
		}
	}
	return false
}
