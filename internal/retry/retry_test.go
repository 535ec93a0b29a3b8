package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errConflict = errors.New("conflict")

func isConflict(err error) bool {
	return errors.Is(err, errConflict)
}

func TestOnConflict_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	res := OnConflict(context.Background(), 3, isConflict, func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})

	assert.True(t, res.OK())
	assert.Equal(t, 42, res.Value)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, calls)
}

func TestOnConflict_RetriesConflictsThenSucceeds(t *testing.T) {
	calls := 0
	res := OnConflict(context.Background(), 3, isConflict, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errConflict
		}
		return "done", nil
	})

	assert.Equal(t, Succeeded, res.Outcome)
	assert.Equal(t, "done", res.Value)
	assert.Equal(t, 3, res.Attempts)
}

func TestOnConflict_Exhausted(t *testing.T) {
	calls := 0
	res := OnConflict(context.Background(), 3, isConflict, func(ctx context.Context) (int, error) {
		calls++
		return 0, errConflict
	})

	assert.Equal(t, ConflictExhausted, res.Outcome)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, res.Err, ErrConflictsExhausted)
	assert.ErrorIs(t, res.Err, errConflict)
	assert.Equal(t, "conflict_exhausted", res.Outcome.String())
}

func TestOnConflict_OtherErrorNotRetried(t *testing.T) {
	boom := errors.New("throttled")
	calls := 0
	res := OnConflict(context.Background(), 3, isConflict, func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})

	assert.Equal(t, Failed, res.Outcome)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, res.Err, boom)
}

func TestOnConflict_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	res := OnConflict(ctx, 3, isConflict, func(ctx context.Context) (int, error) {
		calls++
		return 0, nil
	})

	assert.Equal(t, Failed, res.Outcome)
	assert.Equal(t, 0, calls)
	assert.ErrorIs(t, res.Err, context.Canceled)
}
