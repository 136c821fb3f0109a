// Package store persists work orders and tracks their sync state.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-workorder-sync/internal/retry"
	"github.com/imrishuroy/go-workorder-sync/internal/workorders"
)

// Store is the document store seen by the sync coordinator.
type Store interface {
	// ReadUnsynced returns every work order whose isSynced flag is not true,
	// ordered by ascending number.
	ReadUnsynced(ctx context.Context) ([]workorders.WorkOrder, error)
	// Upsert inserts or fully replaces the work order matched by number and
	// marks it dirty (isSynced=false, updatedAt=now, syncedAt removed).
	Upsert(ctx context.Context, wo workorders.WorkOrder) error
	// MarkSynced flags the work order as synced. It reports false when no
	// record matched number.
	MarkSynced(ctx context.Context, number int64) (bool, error)
	// Get returns the work order with number, or nil when it does not exist.
	Get(ctx context.Context, number int64) (*workorders.WorkOrder, error)
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendMongoDB  = "mongodb"
)

// ErrMissingNumber is returned when a work order without a number is written.
var ErrMissingNumber = errors.New("work order number is required")

// TransientError is a connectivity fault that persisted after every retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("store %s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a fault that retrying cannot fix.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err is, or wraps, a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// run executes fn under policy and classifies the final error.
func run(ctx context.Context, policy retry.Policy, op string, fn func(ctx context.Context) error) error {
	return classify(policy, op, policy.Do(ctx, fn))
}

func retryValue[T any](ctx context.Context, policy retry.Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	out, err := retry.Value(ctx, policy, fn)
	return out, classify(policy, op, err)
}

func classify(policy retry.Policy, op string, err error) error {
	if err == nil {
		return nil
	}
	if policy.IsTransient != nil && policy.IsTransient(err) {
		return &TransientError{Op: op, Err: err}
	}
	return &PermanentError{Op: op, Err: err}
}

func withRetryLogging(p retry.Policy, log logrus.FieldLogger, backend string) retry.Policy {
	if log == nil || p.OnRetry != nil {
		return p
	}
	maxAttempts := p.MaxAttempts
	p.OnRetry = func(attempt int, err error) {
		log.WithFields(logrus.Fields{
			"backend":      backend,
			"attempt":      attempt,
			"max_attempts": maxAttempts,
		}).WithError(err).Warn("transient store error, retrying")
	}
	return p
}
