package raids

import (
	"context"
	"log/slog"

	"github.com/astralis-bot/astralis/internal/jobs"
	"github.com/astralis-bot/astralis/internal/projection"
	"github.com/astralis-bot/astralis/internal/refresh"
	"github.com/astralis-bot/astralis/pkg/id"
	"github.com/astralis-bot/astralis/pkg/queue"
)

// JobExpireSweep is the recurring overdue-raid sweep job name.
const JobExpireSweep = "raids:expire_sweep"

// QueueOptions registers this package's job handlers.
func QueueOptions(status *RefreshStatusTask, sweep *ExpireSweepTask) []queue.Option {
	return []queue.Option{
		queue.WithTask[refresh.Payload](status),
		queue.WithTask[jobs.Tick](sweep),
	}
}

// RefreshStatusTask re-renders a raid's status board message.
type RefreshStatusTask struct {
	proj *projection.Projection[Status]
}

// NewRefreshStatusTask wires the status refresh handler.
func NewRefreshStatusTask(proj *projection.Projection[Status]) *RefreshStatusTask {
	return &RefreshStatusTask{proj: proj}
}

func (t *RefreshStatusTask) Name() string { return refresh.JobRaidStatus }

func (t *RefreshStatusTask) Handle(ctx context.Context, p refresh.Payload) error {
	ctx = jobs.WithCorrelationID(ctx, p.CorrelationID)
	return t.proj.Refresh(ctx, p.TenantID, p.ResourceID)
}

// ExpireSweepTask closes overdue raids on a recurring schedule.
type ExpireSweepTask struct {
	svc *Service
	log *slog.Logger
}

// NewExpireSweepTask wires the recurring sweep handler.
func NewExpireSweepTask(svc *Service, log *slog.Logger) *ExpireSweepTask {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &ExpireSweepTask{svc: svc, log: log}
}

func (t *ExpireSweepTask) Name() string { return JobExpireSweep }

func (t *ExpireSweepTask) Handle(ctx context.Context, _ jobs.Tick) error {
	ctx = jobs.WithCorrelationID(ctx, id.NewCorrelationID())

	expired, err := t.svc.ExpireOverdue(ctx)
	if err != nil {
		return err
	}
	if expired > 0 {
		t.log.InfoContext(ctx, "expired overdue raids", slog.Int("count", expired))
	}
	return nil
}
