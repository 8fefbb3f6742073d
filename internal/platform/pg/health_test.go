package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jsonrest/pkg/retry"
)

func TestWaitFor_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := waitFor(context.Background(), WaitOptions{MaxAttempts: 5, Backoff: retry.Constant(0)}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWaitFor_GivesUp(t *testing.T) {
	calls := 0
	down := errors.New("connection refused")
	err := waitFor(context.Background(), WaitOptions{MaxAttempts: 3, Backoff: retry.Constant(0)}, func(context.Context) error {
		calls++
		return down
	})
	require.ErrorIs(t, err, down)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestWaitFor_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := waitFor(ctx, WaitOptions{Backoff: retry.Constant(time.Hour)}, func(context.Context) error {
		return errors.New("down")
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDefaultWaitOptions(t *testing.T) {
	opts := DefaultWaitOptions()
	require.NotNil(t, opts.Backoff)
	assert.Equal(t, 8, opts.MaxAttempts)
	assert.LessOrEqual(t, opts.Backoff.Delay(10), 15*time.Second)
}

func TestHealthCheckPool_Nil(t *testing.T) {
	require.Error(t, HealthCheckPool(context.Background(), nil))
}
