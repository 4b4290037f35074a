// Package retry provides the bounded retry helper shared by every call to the
// media provider and the video host.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultAttempts is the shared retry budget for failure-prone external calls.
const DefaultAttempts = 3

// Policy bounds a retried operation.
type Policy struct {
	Attempts        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy returns three attempts with a short exponential backoff.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:        DefaultAttempts,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Permanent marks err as not worth retrying (validation failures, 4xx).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}

// Do runs op until it succeeds, returns a permanent error, ctx ends, or the
// attempt budget is spent. The last error is returned unwrapped.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	if p.Attempts == 0 {
		p.Attempts = DefaultAttempts
	}
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return backoff.Retry(ctx, func() (T, error) {
		return op(ctx)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(p.Attempts))
}
