package leaderboard

import (
	"context"
	"log/slog"

	"github.com/astralis-bot/astralis/internal/jobs"
	"github.com/astralis-bot/astralis/internal/projection"
	"github.com/astralis-bot/astralis/internal/refresh"
	"github.com/astralis-bot/astralis/pkg/id"
	"github.com/astralis-bot/astralis/pkg/queue"
)

// JobMonthlyTick is the recurring month-end fan-out job name.
const JobMonthlyTick = "leaderboard:monthly_tick"

// QueueOptions registers this package's job handlers.
func QueueOptions(card *RefreshCardTask, tick *MonthlyTickTask) []queue.Option {
	return []queue.Option{
		queue.WithTask[refresh.Payload](card),
		queue.WithTask[jobs.Tick](tick),
	}
}

// RefreshCardTask re-renders a guild's leaderboard card.
type RefreshCardTask struct {
	proj *projection.Projection[Card]
}

// NewRefreshCardTask wires the card refresh handler.
func NewRefreshCardTask(proj *projection.Projection[Card]) *RefreshCardTask {
	return &RefreshCardTask{proj: proj}
}

func (t *RefreshCardTask) Name() string { return refresh.JobLeaderboardCard }

func (t *RefreshCardTask) Handle(ctx context.Context, p refresh.Payload) error {
	ctx = jobs.WithCorrelationID(ctx, p.CorrelationID)
	return t.proj.Refresh(ctx, p.TenantID, p.ResourceID)
}

// MonthlyTickTask fans one refresh out to every guild that scored this
// month. The tick itself carries no per-guild state; each refresh
// re-reads the totals when it runs.
type MonthlyTickTask struct {
	svc     *Service
	refresh *refresh.Service
	log     *slog.Logger
}

// NewMonthlyTickTask wires the recurring fan-out handler.
func NewMonthlyTickTask(svc *Service, refreshSvc *refresh.Service, log *slog.Logger) *MonthlyTickTask {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &MonthlyTickTask{svc: svc, refresh: refreshSvc, log: log}
}

func (t *MonthlyTickTask) Name() string { return JobMonthlyTick }

func (t *MonthlyTickTask) Handle(ctx context.Context, _ jobs.Tick) error {
	ctx = jobs.WithCorrelationID(ctx, id.NewCorrelationID())

	monthKey := MonthKey(t.svc.now())
	guilds, err := t.svc.Guilds(ctx, monthKey)
	if err != nil {
		return err
	}

	// One guild's failure must not starve the rest; collect and report.
	var failed int
	for _, guildID := range guilds {
		req := refresh.Payload{
			Envelope: jobs.Envelope{
				CorrelationID: id.NewCorrelationID(),
				TenantID:      guildID,
				Feature:       "leaderboard",
				Action:        "refresh",
			},
			ResourceID: guildID,
		}
		if err := t.refresh.Request(ctx, refresh.KindLeaderboardCard, req); err != nil {
			failed++
			t.log.ErrorContext(ctx, "leaderboard tick fan-out failed",
				slog.String("guild_id", guildID), slog.Any("error", err))
		}
	}

	t.log.InfoContext(ctx, "leaderboard tick complete",
		slog.String("month", monthKey),
		slog.Int("guilds", len(guilds)),
		slog.Int("failed", failed),
	)
	return nil
}
