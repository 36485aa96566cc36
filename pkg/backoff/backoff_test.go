package backoff

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astralis-bot/astralis/pkg/platform"
)

func TestClassify_APIErrors(t *testing.T) {
	t.Parallel()

	base := 500 * time.Millisecond
	cap := 30 * time.Second

	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"rate limited", &platform.APIError{Status: 429}, true},
		{"internal error", &platform.APIError{Status: 500}, true},
		{"bad gateway", &platform.APIError{Status: 502}, true},
		{"service unavailable", &platform.APIError{Status: 503}, true},
		{"bad request", &platform.APIError{Status: 400}, false},
		{"unauthorized", &platform.APIError{Status: 401}, false},
		{"forbidden", &platform.APIError{Status: 403}, false},
		{"not found", &platform.APIError{Status: 404}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := Classify(tt.err, 1, base, cap)
			assert.Equal(t, tt.retryable, d.Retryable)
		})
	}
}

func TestClassify_RetryAfterHintWins(t *testing.T) {
	t.Parallel()

	err := &platform.APIError{Status: 429, RetryAfter: 7 * time.Second}
	d := Classify(err, 1, 500*time.Millisecond, 30*time.Second)

	require.True(t, d.Retryable)
	// Hint is used verbatim, no jitter added.
	assert.Equal(t, 7*time.Second, d.Wait)
}

func TestClassify_TransportErrors(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	cap := 10 * time.Second

	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"connection reset", syscall.ECONNRESET, true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "api.example.com"}, true},
		{"timeout", &timeoutError{}, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"context canceled", context.Canceled, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := Classify(tt.err, 1, base, cap)
			assert.Equal(t, tt.retryable, d.Retryable)
		})
	}
}

func TestExponentialWait(t *testing.T) {
	t.Parallel()

	base := 1 * time.Second
	cap := 8 * time.Second

	t.Run("doubles per attempt", func(t *testing.T) {
		t.Parallel()

		for attempt, want := range map[int]time.Duration{
			1: 1 * time.Second,
			2: 2 * time.Second,
			3: 4 * time.Second,
		} {
			d := Classify(&platform.APIError{Status: 500}, attempt, base, cap)
			require.True(t, d.Retryable)
			assert.GreaterOrEqual(t, d.Wait, want, "attempt %d", attempt)
			assert.Less(t, d.Wait, want+maxJitter, "attempt %d", attempt)
		}
	})

	t.Run("capped", func(t *testing.T) {
		t.Parallel()

		d := Classify(&platform.APIError{Status: 500}, 10, base, cap)
		require.True(t, d.Retryable)
		assert.Less(t, d.Wait, cap+maxJitter)
	})
}

type timeoutError struct{}

func (*timeoutError) Error() string   { return "timeout" }
func (*timeoutError) Timeout() bool   { return true }
func (*timeoutError) Temporary() bool { return true }
