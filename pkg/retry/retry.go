// Package retry wraps outbound calls in an exponential backoff policy with an explicit
// split between retryable and terminal failures.
package retry

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/noah-isme/eduplan-api/pkg/config"
)

// Policy bounds how often and how fast a call is retried.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Classifier reports whether err is worth another attempt.
type Classifier func(err error) bool

// NotifyFunc observes a failed attempt before the next one is scheduled.
type NotifyFunc func(err error, attempt int, next time.Duration)

// FromConfig converts the shared retry configuration into a Policy.
func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
	}
}

// Do runs op until it succeeds, returns a terminal error, the attempts are exhausted or ctx
// is done. A nil classifier treats every error as retryable. The last error is returned
// unwrapped.
func Do(ctx context.Context, p Policy, retryable Classifier, op func(context.Context) error, notify NotifyFunc) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || (retryable != nil && !retryable(err)) {
			return backoff.Permanent(err)
		}
		return err
	}

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, next time.Duration) { notify(err, attempt, next) }
	}

	return backoff.RetryNotify(operation, p.backOff(ctx, uint64(attempts-1)), onRetry)
}

// Permanent marks err as terminal so Do stops immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// RetryableStatus classifies HTTP status codes: timeouts, throttling and server errors
// are transient.
func RetryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code >= http.StatusInternalServerError:
		return code != http.StatusNotImplemented
	default:
		return false
	}
}

func (p Policy) backOff(ctx context.Context, retries uint64) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}
