package queue

import (
	"context"
	"log/slog"
)

// config holds manager configuration.
type config struct {
	registry   *taskRegistry
	queues     map[string]int
	logger     *slog.Logger
	maxWorkers int
}

func newConfig() *config {
	return &config{
		registry: newTaskRegistry(),
		queues:   make(map[string]int),
	}
}

// Option configures the manager.
type Option func(*config)

// WithTask registers a task handler using structural typing. The task
// implements Name() and Handle(ctx, P); the payload type P is given
// explicitly and the task type is inferred from the argument.
//
// Example:
//
//	type RefreshScoreboard struct {
//	    duels *duels.Service
//	}
//
//	func (t *RefreshScoreboard) Name() string { return "duels:refresh_scoreboard" }
//	func (t *RefreshScoreboard) Handle(ctx context.Context, p ScoreboardPayload) error {
//	    return t.duels.RefreshScoreboard(ctx, p)
//	}
//
//	queue.WithTask[ScoreboardPayload](&RefreshScoreboard{duels: svc})
func WithTask[P any, T interface {
	Name() string
	Handle(context.Context, P) error
}](task T) Option {
	return func(c *config) {
		c.registry.register(task.Name(), newTaskWrapper[P, T](task))
	}
}

// WithQueue configures a named queue with its worker count.
func WithQueue(name string, workers int) Option {
	return func(c *config) {
		if workers > 0 {
			c.queues[name] = workers
		}
	}
}

// WithLogger sets the logger for job processing.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxWorkers sets the worker count for the default queue.
// Default: 100.
func WithMaxWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxWorkers = n
		}
	}
}
