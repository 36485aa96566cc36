package queue

import (
	"context"
	"time"
)

// Enqueuer submits jobs for asynchronous execution. Implemented by
// Manager and by the insert-only Client; faked in tests.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any, opts ...EnqueueOption) error
}

// Recurring manages named cron registrations at runtime. Implemented by
// Manager; consumed by the schedule registry.
type Recurring interface {
	// ScheduleRecurring registers (or replaces) a recurring job.
	ScheduleRecurring(name, cronExpr string, payload any) error

	// UnscheduleRecurring removes a recurring job registration.
	// Removing a name that was never registered is a no-op.
	UnscheduleRecurring(name string)
}

// EnqueueOption configures a single job submission.
type EnqueueOption func(*enqueueConfig)

type enqueueConfig struct {
	notBefore    *time.Time
	queue        string
	coalesceKey  string
	coalesceFor  time.Duration
	maxAttempts  int
}

// WithCoalesceKey sets the deduplication token for this submission.
// Together with WithCoalesceWindow, submissions sharing the key within
// the window collapse into one queued job.
func WithCoalesceKey(key string) EnqueueOption {
	return func(c *enqueueConfig) {
		c.coalesceKey = key
	}
}

// WithCoalesceWindow sets the deduplication interval for the coalesce
// key.
func WithCoalesceWindow(d time.Duration) EnqueueOption {
	return func(c *enqueueConfig) {
		if d > 0 {
			c.coalesceFor = d
		}
	}
}

// WithMaxAttempts bounds queue-level re-deliveries of this job.
func WithMaxAttempts(n int) EnqueueOption {
	return func(c *enqueueConfig) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithNotBefore delays execution until the given time.
func WithNotBefore(t time.Time) EnqueueOption {
	return func(c *enqueueConfig) {
		c.notBefore = &t
	}
}

// WithQueueName routes the job to a named queue.
func WithQueueName(name string) EnqueueOption {
	return func(c *enqueueConfig) {
		if name != "" {
			c.queue = name
		}
	}
}

// Settings is the resolved view of a set of enqueue options. Enqueuer
// fakes use it to assert on submission parameters.
type Settings struct {
	Queue          string
	NotBefore      *time.Time
	CoalesceKey    string
	CoalesceWindow time.Duration
	MaxAttempts    int
}

// ResolveOptions applies the options and returns the resulting settings.
func ResolveOptions(opts ...EnqueueOption) Settings {
	cfg := &enqueueConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return Settings{
		Queue:          cfg.queue,
		NotBefore:      cfg.notBefore,
		CoalesceKey:    cfg.coalesceKey,
		CoalesceWindow: cfg.coalesceFor,
		MaxAttempts:    cfg.maxAttempts,
	}
}
