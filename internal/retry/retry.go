// Package retry runs store operations under a bounded backoff schedule.
package retry

import (
	"context"
	"fmt"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Backoff schedules.
const (
	BackoffExponential = "exponential"
	BackoffConstant    = "constant"
)

// Policy describes how many times an operation is attempted and how long to
// wait between attempts. Only errors accepted by IsTransient are retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Backoff     string
	IsTransient func(error) bool
	// OnRetry, when set, is called before each wait with the failed attempt number.
	OnRetry func(attempt int, err error)
}

// Default returns 3 attempts with exponential backoff starting at one second.
func Default(isTransient func(error) bool) Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Backoff:     BackoffExponential,
		IsTransient: isTransient,
	}
}

// Validate checks the policy parameters.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry: max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("retry: base delay must be positive, got %s", p.BaseDelay)
	}
	switch p.Backoff {
	case BackoffExponential, BackoffConstant, "":
	default:
		return fmt.Errorf("retry: unknown backoff %q", p.Backoff)
	}
	return nil
}

func (p Policy) schedule() goretry.Backoff {
	var b goretry.Backoff
	if p.Backoff == BackoffConstant {
		b = goretry.NewConstant(p.BaseDelay)
	} else {
		b = goretry.NewExponential(p.BaseDelay)
	}
	retries := 0
	if p.MaxAttempts > 1 {
		retries = p.MaxAttempts - 1
	}
	return goretry.WithMaxRetries(uint64(retries), b)
}

// Do runs op until it succeeds, returns a non-transient error, or the attempt
// budget is spent. The last error from op is returned unchanged.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempt := 0
	return goretry.Do(ctx, p.schedule(), func(ctx context.Context) error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if p.IsTransient == nil || !p.IsTransient(err) {
			return err
		}
		if p.OnRetry != nil && attempt < p.MaxAttempts {
			p.OnRetry(attempt, err)
		}
		return goretry.RetryableError(err)
	})
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
