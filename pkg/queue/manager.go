package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
	"github.com/robfig/cron/v3"

	"github.com/astralis-bot/astralis/pkg/logger"
)

const (
	defaultMaxWorkers = 100
	defaultQueue      = river.QueueDefault
)

// botJobArgs is the single River arguments type all jobs share: a task
// name plus a raw JSON payload. One worker dispatches through the
// registry, so adding a task never touches River configuration.
//
// Only the task name and the coalesce key carry the river:"unique" tag:
// payloads hold per-event fields like correlation ids, which must not
// defeat coalescing.
type botJobArgs struct {
	TaskName  string          `json:"task_name" river:"unique"`
	UniqueKey string          `json:"unique_key,omitempty" river:"unique"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func (botJobArgs) Kind() string {
	return "astralis:job"
}

// Manager processes background jobs and owns the recurring-schedule
// registrations. It embeds Client, so it also enqueues.
type Manager struct {
	*Client
	registry *taskRegistry
	logger   *slog.Logger

	mu       sync.Mutex
	periodic map[string]rivertype.PeriodicJobHandle
	started  bool
}

// NewManager creates a job manager. The River client exists before
// Start is called, so jobs and schedules can be registered up front.
func NewManager(pool *pgxpool.Pool, opts ...Option) (*Manager, error) {
	if pool == nil {
		return nil, ErrPoolRequired
	}

	cfg := newConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.logger == nil {
		cfg.logger = logger.NewNope()
	}
	if cfg.maxWorkers == 0 {
		cfg.maxWorkers = defaultMaxWorkers
	}

	queues := map[string]river.QueueConfig{
		defaultQueue: {MaxWorkers: cfg.maxWorkers},
	}
	for name, workers := range cfg.queues {
		queues[name] = river.QueueConfig{MaxWorkers: workers}
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &dispatchWorker{
		registry: cfg.registry,
		logger:   cfg.logger,
	})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:  queues,
		Workers: workers,
		Logger:  cfg.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("queue: create client: %w", err)
	}

	return &Manager{
		Client: &Client{
			pool:   pool,
			client: client,
			logger: cfg.logger,
		},
		registry: cfg.registry,
		logger:   cfg.logger,
		periodic: make(map[string]rivertype.PeriodicJobHandle),
	}, nil
}

// Start begins processing jobs.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrAlreadyStarted
	}
	if err := m.client.Start(ctx); err != nil {
		return fmt.Errorf("queue: start client: %w", err)
	}
	m.started = true

	m.logger.Info("job manager started",
		slog.Int("tasks", len(m.registry.names())),
	)
	return nil
}

// Stop drains running jobs and shuts the manager down.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return ErrNotStarted
	}
	if err := m.client.Stop(ctx); err != nil {
		return fmt.Errorf("queue: stop client: %w", err)
	}
	m.started = false

	m.logger.Info("job manager stopped")
	return nil
}

// Shutdown returns a shutdown hook for the manager.
func (m *Manager) Shutdown() func(context.Context) error {
	return m.Stop
}

// Enqueue submits a job, validating the task name against the registry
// so typos fail at the call site instead of in a worker.
func (m *Manager) Enqueue(ctx context.Context, name string, payload any, opts ...EnqueueOption) error {
	if _, ok := m.registry.get(name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return m.Client.Enqueue(ctx, name, payload, opts...)
}

// EnqueueTx submits a job inside tx, making the database change and the
// job submission atomic.
func (m *Manager) EnqueueTx(ctx context.Context, tx pgx.Tx, name string, payload any, opts ...EnqueueOption) error {
	if _, ok := m.registry.get(name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return m.Client.EnqueueTx(ctx, tx, name, payload, opts...)
}

// ScheduleRecurring registers a recurring job under name, replacing any
// previous registration of the same name. The task named by name must
// be registered.
func (m *Manager) ScheduleRecurring(name, cronExpr string, payload any) error {
	if _, ok := m.registry.get(name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	sched, err := parseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidCron, cronExpr, err)
	}

	var raw json.RawMessage
	if payload != nil {
		raw, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("queue: marshal recurring payload: %w", err)
		}
	}

	job := river.NewPeriodicJob(
		sched,
		func() (river.JobArgs, *river.InsertOpts) {
			return &botJobArgs{TaskName: name, Payload: raw}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: false},
	)

	m.mu.Lock()
	defer m.mu.Unlock()

	if handle, ok := m.periodic[name]; ok {
		m.client.PeriodicJobs().Remove(handle)
	}
	m.periodic[name] = m.client.PeriodicJobs().Add(job)

	m.logger.Info("recurring job scheduled",
		slog.String("name", name),
		slog.String("cron", cronExpr),
	)
	return nil
}

// UnscheduleRecurring removes a recurring registration. Names that were
// never scheduled are ignored.
func (m *Manager) UnscheduleRecurring(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handle, ok := m.periodic[name]
	if !ok {
		return
	}
	m.client.PeriodicJobs().Remove(handle)
	delete(m.periodic, name)

	m.logger.Info("recurring job unscheduled", slog.String("name", name))
}

// dispatchWorker routes every River job through the task registry.
type dispatchWorker struct {
	river.WorkerDefaults[botJobArgs]
	registry *taskRegistry
	logger   *slog.Logger
}

func (w *dispatchWorker) Work(ctx context.Context, job *river.Job[botJobArgs]) error {
	executor, ok := w.registry.get(job.Args.TaskName)
	if !ok || executor == nil {
		// A task that disappeared across a deploy cannot succeed later.
		return river.JobCancel(fmt.Errorf("%w: %s", ErrUnknownTask, job.Args.TaskName))
	}

	w.logger.DebugContext(ctx, "executing job",
		slog.String("task", job.Args.TaskName),
		slog.Int64("job_id", job.ID),
		slog.Int("attempt", job.Attempt),
	)

	if err := executor.Execute(ctx, job.Args.Payload); err != nil {
		w.logger.ErrorContext(ctx, "job failed",
			slog.String("task", job.Args.TaskName),
			slog.Int64("job_id", job.ID),
			slog.Int("attempt", job.Attempt),
			slog.Any("error", err),
		)
		if errors.Is(err, ErrInvalidPayload) {
			return river.JobCancel(err)
		}
		return err
	}

	w.logger.DebugContext(ctx, "job completed",
		slog.String("task", job.Args.TaskName),
		slog.Int64("job_id", job.ID),
	)
	return nil
}

type cronSchedule struct {
	schedule cron.Schedule
}

func (a *cronSchedule) Next(current time.Time) time.Time {
	return a.schedule.Next(current)
}

func parseCron(expr string) (river.PeriodicSchedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, err
	}
	return &cronSchedule{schedule: schedule}, nil
}
