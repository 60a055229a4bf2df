// Package retryx retries operations that failed with a transient backend
// error (common.ErrConnectionFailure) using capped exponential backoff.
package retryx

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/depmsg/internal/common"
	"github.com/sethvargo/go-retry"
)

// Policy bounds the retry loop. MaxRetries of zero disables retrying.
type Policy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}
}

func (p Policy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.NewExponential(base)
	b = retry.WithJitterPercent(10, b)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	return retry.WithMaxRetries(p.MaxRetries, b)
}

// Retryable reports whether err is a transient backend failure.
func Retryable(err error) bool {
	return errors.Is(err, common.ErrConnectionFailure)
}

// Do runs fn until it succeeds, fails with a non-retryable error, the retry
// budget is spent or ctx is done. The last error from fn is returned as is.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && Retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// DoValue is Do for functions that return a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
