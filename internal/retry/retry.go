// Package retry re-runs failed dispatcher calls with exponential backoff.
// Only failures that could plausibly succeed on a second attempt are
// retried: transport errors, 429 and 5xx responses. Offline misses, client
// errors and superseded calls are returned immediately.
package retry

import (
	"context"
	stderrors "errors"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/textlens/textlens/internal/errors"
	"github.com/textlens/textlens/internal/metrics"
	"github.com/textlens/textlens/internal/observability"
)

const (
	DefaultBaseDelay = 500 * time.Millisecond
	DefaultMaxDelay  = 5 * time.Second
)

// Policy configures retry behavior. MaxRetries counts additional attempts
// after the first.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Logger     observability.Logger
}

// NewPolicy returns a policy with default delays.
func NewPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries: maxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// Delay returns the wait before the given retry (1-based).
func (p Policy) Delay(retry int) time.Duration {
	if retry < 1 || p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < retry; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	var netErr *apperrors.NetworkError
	if !stderrors.As(err, &netErr) {
		return false
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}
	return netErr.Retryable()
}

// Do calls fn until it succeeds, returns a non-retryable error, the retry
// budget is spent, or ctx is done.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	logger := p.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	var (
		value T
		err   error
	)
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.Delay(attempt)
			logger.Debug("Retrying request",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			var netErr *apperrors.NetworkError
			if stderrors.As(err, &netErr) {
				metrics.RecordRetry(netErr.Endpoint)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				var zero T
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		value, err = fn(ctx)
		if err == nil || !Retryable(err) {
			return value, err
		}
	}
	return value, err
}
