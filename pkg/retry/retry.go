// Package retry wraps single chat-platform API calls with classified,
// bounded retries.
//
// This is the one place failed external calls surface for operational
// visibility: every attempt and every terminal failure is logged with
// the attempt count and classified wait.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/astralis-bot/astralis/pkg/backoff"
)

// ErrExhausted is returned when all attempts failed or a fatal error
// cut the retry loop short. It wraps the last underlying error.
var ErrExhausted = errors.New("retry: attempts exhausted")

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 30 * time.Second
)

// Invoker retries API calls according to pkg/backoff classification.
// The zero value is not usable; construct with New.
type Invoker struct {
	logger      *slog.Logger
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithMaxAttempts bounds the number of attempts. Default: 5.
func WithMaxAttempts(n int) Option {
	return func(iv *Invoker) {
		if n > 0 {
			iv.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the first-retry wait. Default: 500ms.
func WithBaseDelay(d time.Duration) Option {
	return func(iv *Invoker) {
		if d > 0 {
			iv.baseDelay = d
		}
	}
}

// WithMaxDelay caps the computed exponential wait. Default: 30s.
func WithMaxDelay(d time.Duration) Option {
	return func(iv *Invoker) {
		if d > 0 {
			iv.maxDelay = d
		}
	}
}

// WithLogger sets the logger for attempt reporting.
func WithLogger(l *slog.Logger) Option {
	return func(iv *Invoker) {
		if l != nil {
			iv.logger = l
		}
	}
}

// New creates an Invoker.
func New(opts ...Option) *Invoker {
	iv := &Invoker{
		logger:      slog.New(slog.DiscardHandler),
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
	}
	for _, opt := range opts {
		opt(iv)
	}
	return iv
}

// Do invokes fn until it succeeds, a fatal error is classified, the
// attempt budget runs out, or ctx is canceled. desc names the call in
// logs ("edit scoreboard message").
func (iv *Invoker) Do(ctx context.Context, desc string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= iv.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(ErrExhausted, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		decision := backoff.Classify(lastErr, attempt, iv.baseDelay, iv.maxDelay)

		iv.logger.WarnContext(ctx, "api call failed",
			slog.String("call", desc),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", iv.maxAttempts),
			slog.Bool("retryable", decision.Retryable),
			slog.Duration("wait", decision.Wait),
			slog.Any("error", lastErr),
		)

		if !decision.Retryable {
			return fmt.Errorf("%w: %s: %w", ErrExhausted, desc, lastErr)
		}
		if attempt == iv.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return errors.Join(ErrExhausted, ctx.Err())
		case <-time.After(decision.Wait):
		}
	}

	iv.logger.ErrorContext(ctx, "api call abandoned",
		slog.String("call", desc),
		slog.Int("attempts", iv.maxAttempts),
		slog.Any("error", lastErr),
	)

	return fmt.Errorf("%w: %s: %w", ErrExhausted, desc, lastErr)
}

// Do invokes fn through the Invoker and returns its value.
// Use this for calls that produce a result, like message creation.
func Do[T any](ctx context.Context, iv *Invoker, desc string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := iv.Do(ctx, desc, func(ctx context.Context) error {
		var innerErr error
		out, innerErr = fn(ctx)
		return innerErr
	})
	return out, err
}
