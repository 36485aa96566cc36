package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/astralis-bot/astralis/pkg/queue"
)

// Store persists the per-schedule enabled override. Absent rows mean
// enabled: a freshly deployed schedule runs without operator action.
type Store interface {
	Enabled(ctx context.Context, name string) (bool, error)
	SetEnabled(ctx context.Context, name string, enabled bool) error
}

// Status is one schedule's reconciled state, for operator tooling.
type Status struct {
	Name    string `json:"name"`
	Cron    string `json:"cron"`
	Enabled bool   `json:"enabled"`
}

// Registry owns the definition list and keeps the queue's recurring
// registrations matching the persisted enabled flags.
type Registry struct {
	defs   []Definition
	byName map[string]Definition
	store  Store
	queue  queue.Recurring
	logger *slog.Logger
}

// NewRegistry validates the definitions and builds a registry. Call
// Reconcile once at boot to apply them.
func NewRegistry(defs []Definition, store Store, q queue.Recurring, log *slog.Logger) (*Registry, error) {
	byName := make(map[string]Definition, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return nil, ErrMissingName
		}
		if _, dup := byName[def.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, def.Name)
		}
		if err := ValidateCron(def.Cron); err != nil {
			return nil, fmt.Errorf("%s: %w", def.Name, err)
		}
		byName[def.Name] = def
	}

	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Registry{
		defs:   defs,
		byName: byName,
		store:  store,
		queue:  q,
		logger: log,
	}, nil
}

// Reconcile applies every definition's persisted enabled flag to the
// queue: enabled schedules are (re-)registered with their original cron
// string, disabled ones are removed. Removing a registration that was
// never present is tolerated by the queue adapter.
func (r *Registry) Reconcile(ctx context.Context) error {
	for _, def := range r.defs {
		if err := r.apply(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

// SetEnabled persists the flag for one schedule and reconciles it.
func (r *Registry) SetEnabled(ctx context.Context, name string, enabled bool) error {
	def, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSchedule, name)
	}

	if err := r.store.SetEnabled(ctx, name, enabled); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "schedule toggled",
		slog.String("schedule", name),
		slog.Bool("enabled", enabled),
	)

	return r.apply(ctx, def)
}

// Statuses reports every schedule with its current enabled flag.
func (r *Registry) Statuses(ctx context.Context) ([]Status, error) {
	out := make([]Status, 0, len(r.defs))
	for _, def := range r.defs {
		enabled, err := r.store.Enabled(ctx, def.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, Status{Name: def.Name, Cron: def.Cron, Enabled: enabled})
	}
	return out, nil
}

func (r *Registry) apply(ctx context.Context, def Definition) error {
	enabled, err := r.store.Enabled(ctx, def.Name)
	if err != nil {
		return err
	}

	if !enabled {
		r.queue.UnscheduleRecurring(def.Name)
		return nil
	}
	if err := r.queue.ScheduleRecurring(def.Name, def.Cron, def.Payload); err != nil {
		return fmt.Errorf("schedule: register %s: %w", def.Name, err)
	}
	return nil
}
