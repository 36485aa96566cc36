package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astralis-bot/astralis/pkg/platform"
	"github.com/astralis-bot/astralis/pkg/retry"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	iv := retry.New(retry.WithMaxAttempts(3))

	calls := 0
	err := iv.Do(context.Background(), "create message", func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_FatalErrorNotRetried(t *testing.T) {
	t.Parallel()

	iv := retry.New(retry.WithMaxAttempts(5))

	calls := 0
	err := iv.Do(context.Background(), "edit message", func(context.Context) error {
		calls++
		return &platform.APIError{Status: 400, Message: "malformed embed"}
	})

	require.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, 1, calls, "400 must fail immediately with zero retries")

	var ae *platform.APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 400, ae.Status)
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	t.Parallel()

	iv := retry.New(
		retry.WithMaxAttempts(5),
		retry.WithBaseDelay(time.Millisecond),
		retry.WithMaxDelay(2*time.Millisecond),
	)

	calls := 0
	err := iv.Do(context.Background(), "edit message", func(context.Context) error {
		calls++
		if calls < 3 {
			return &platform.APIError{Status: 502}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	iv := retry.New(
		retry.WithMaxAttempts(3),
		retry.WithBaseDelay(time.Millisecond),
		retry.WithMaxDelay(2*time.Millisecond),
	)

	calls := 0
	cause := &platform.APIError{Status: 503}
	err := iv.Do(context.Background(), "create message", func(context.Context) error {
		calls++
		return cause
	})

	require.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, 3, calls)

	var ae *platform.APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 503, ae.Status)
}

func TestDo_HonorsRetryAfterHint(t *testing.T) {
	t.Parallel()

	iv := retry.New(retry.WithMaxAttempts(2), retry.WithBaseDelay(time.Millisecond))

	hint := 150 * time.Millisecond
	var firstFail, secondTry time.Time

	calls := 0
	err := iv.Do(context.Background(), "edit message", func(context.Context) error {
		calls++
		if calls == 1 {
			firstFail = time.Now()
			return &platform.APIError{Status: 429, RetryAfter: hint}
		}
		secondTry = time.Now()
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, secondTry.Sub(firstFail), hint,
		"next attempt must wait at least the server hint")
}

func TestDo_CanceledDuringWait(t *testing.T) {
	t.Parallel()

	iv := retry.New(retry.WithMaxAttempts(5), retry.WithBaseDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- iv.Do(ctx, "edit message", func(context.Context) error {
			return &platform.APIError{Status: 500}
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, retry.ErrExhausted)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("invoker did not abort its backoff wait on cancellation")
	}
}

func TestDoValue(t *testing.T) {
	t.Parallel()

	iv := retry.New(retry.WithMaxAttempts(3), retry.WithBaseDelay(time.Millisecond))

	calls := 0
	id, err := retry.Do(context.Background(), iv, "create message", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.Join(&platform.APIError{Status: 500})
		}
		return "m-123", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "m-123", id)
	assert.Equal(t, 2, calls)
}
