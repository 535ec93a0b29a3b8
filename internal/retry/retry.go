// Package retry provides a bounded retry combinator for optimistic-concurrency conflicts.
package retry

import (
	"context"
	"errors"
	"fmt"
)

// Outcome classifies how a retried operation finished
type Outcome int

const (
	// Succeeded means the operation returned without error
	Succeeded Outcome = iota
	// ConflictExhausted means every attempt ended in a conflict
	ConflictExhausted
	// Failed means the operation returned a non-conflict error, which is never retried
	Failed
)

// String returns the outcome label used in logs and metrics
func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case ConflictExhausted:
		return "conflict_exhausted"
	default:
		return "failed"
	}
}

// Result is the typed result of OnConflict
type Result[T any] struct {
	Value    T
	Outcome  Outcome
	Attempts int
	Err      error
}

// OK reports whether the operation succeeded
func (r Result[T]) OK() bool {
	return r.Outcome == Succeeded
}

// ErrConflictsExhausted wraps the last conflict once all attempts are used
var ErrConflictsExhausted = errors.New("conflict retries exhausted")

// OnConflict runs fn up to maxAttempts times, retrying only while isConflict reports the returned
// error as a conflict. There is no sleep between attempts: conflicts are reported synchronously by the
// store. A cancelled context stops retrying and is reported as Failed.
func OnConflict[T any](ctx context.Context, maxAttempts int, isConflict func(error) bool, fn func(ctx context.Context) (T, error)) Result[T] {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result[T]{Outcome: Failed, Attempts: attempt - 1, Err: err}
		}

		value, err := fn(ctx)
		if err == nil {
			return Result[T]{Value: value, Outcome: Succeeded, Attempts: attempt}
		}
		if !isConflict(err) {
			return Result[T]{Outcome: Failed, Attempts: attempt, Err: err}
		}
		lastErr = err
	}

	return Result[T]{
		Outcome:  ConflictExhausted,
		Attempts: maxAttempts,
		Err:      fmt.Errorf("%w after %d attempts: %w", ErrConflictsExhausted, maxAttempts, lastErr),
	}
}
