package horoscope

import (
	"context"
	"errors"
	"log/slog"

	"github.com/astralis-bot/astralis/internal/jobs"
	"github.com/astralis-bot/astralis/internal/projection"
	"github.com/astralis-bot/astralis/pkg/id"
	"github.com/astralis-bot/astralis/pkg/queue"
)

const (
	// JobWeeklyTick is the recurring Monday fan-out job name.
	JobWeeklyTick = "horoscope:weekly_tick"
	// JobPostWeek posts (or finishes posting) one guild's week.
	JobPostWeek = "horoscope:post_week"
)

// QueueOptions registers this package's job handlers.
func QueueOptions(tick *WeeklyTickTask, post *PostWeekTask) []queue.Option {
	return []queue.Option{
		queue.WithTask[jobs.Tick](tick),
		queue.WithTask[postPayload](post),
	}
}

// postPayload is the body of a per-guild weekly post job.
type postPayload struct {
	jobs.Envelope
	WeekKey string `json:"week_key"`
}

func (p postPayload) Validate() error {
	err := p.Envelope.Validate()
	if p.WeekKey == "" {
		err = errors.Join(err, errors.New("horoscope: missing week key"))
	}
	return err
}

// WeeklyTickTask fans one post job out per configured guild. The tick
// is idempotent: rows already pending or posted are left alone, and a
// duplicate post job finds nothing to claim.
type WeeklyTickTask struct {
	svc      *Service
	enqueuer queue.Enqueuer
	log      *slog.Logger
}

// NewWeeklyTickTask wires the recurring fan-out handler.
func NewWeeklyTickTask(svc *Service, enqueuer queue.Enqueuer, log *slog.Logger) *WeeklyTickTask {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &WeeklyTickTask{svc: svc, enqueuer: enqueuer, log: log}
}

func (t *WeeklyTickTask) Name() string { return JobWeeklyTick }

func (t *WeeklyTickTask) Handle(ctx context.Context, _ jobs.Tick) error {
	ctx = jobs.WithCorrelationID(ctx, id.NewCorrelationID())

	guilds, err := t.svc.ConfiguredGuilds(ctx)
	if err != nil {
		return err
	}

	weekKey := WeekKey(t.svc.now())
	var failed int
	for _, guildID := range guilds {
		if err := t.svc.EnsureWeek(ctx, guildID, weekKey); err != nil {
			failed++
			t.log.ErrorContext(ctx, "weekly row creation failed",
				slog.String("guild_id", guildID), slog.Any("error", err))
			continue
		}

		p := postPayload{
			Envelope: jobs.Envelope{
				CorrelationID: id.NewCorrelationID(),
				TenantID:      guildID,
				Feature:       "horoscope",
				Action:        "post_week",
			},
			WeekKey: weekKey,
		}
		if err := t.enqueuer.Enqueue(ctx, JobPostWeek, p, queue.WithMaxAttempts(5)); err != nil {
			failed++
			t.log.ErrorContext(ctx, "weekly post enqueue failed",
				slog.String("guild_id", guildID), slog.Any("error", err))
		}
	}

	t.log.InfoContext(ctx, "weekly horoscope tick complete",
		slog.String("week", weekKey),
		slog.Int("guilds", len(guilds)),
		slog.Int("failed", failed),
	)
	return nil
}

// PostWeekTask claims and posts one guild's weekly message.
type PostWeekTask struct {
	svc  *Service
	proj *projection.Projection[Reading]
	log  *slog.Logger
}

// NewPostWeekTask wires the per-guild post handler.
func NewPostWeekTask(svc *Service, proj *projection.Projection[Reading], log *slog.Logger) *PostWeekTask {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &PostWeekTask{svc: svc, proj: proj, log: log}
}

func (t *PostWeekTask) Name() string { return JobPostWeek }

func (t *PostWeekTask) Handle(ctx context.Context, p postPayload) error {
	ctx = jobs.WithCorrelationID(ctx, p.CorrelationID)

	err := t.svc.ClaimPost(ctx, p.TenantID, p.WeekKey)
	if errors.Is(err, ErrNotClaimed) {
		// Another worker owns or finished this week; nothing to do.
		t.log.InfoContext(ctx, "weekly post not claimable",
			slog.String("guild_id", p.TenantID), slog.String("week", p.WeekKey))
		return nil
	}
	if err != nil {
		return err
	}

	if err := t.proj.Refresh(ctx, p.TenantID, p.WeekKey); err != nil {
		// The claim stays in processing; a retry or a later reclaim
		// picks it back up.
		return err
	}
	return t.svc.MarkPosted(ctx, p.TenantID, p.WeekKey)
}
