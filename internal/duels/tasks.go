package duels

import (
	"context"
	"errors"

	"github.com/astralis-bot/astralis/internal/jobs"
	"github.com/astralis-bot/astralis/internal/projection"
	"github.com/astralis-bot/astralis/internal/refresh"
	"github.com/astralis-bot/astralis/pkg/queue"
)

// QueueOptions registers this package's job handlers.
func QueueOptions(scoreboard *RefreshScoreboardTask, closer *CloseRoundTask) []queue.Option {
	return []queue.Option{
		queue.WithTask[refresh.Payload](scoreboard),
		queue.WithTask[closePayload](closer),
	}
}

// closePayload is the body of the scheduled round-close job.
type closePayload struct {
	jobs.Envelope
	RoundID string `json:"round_id"`
}

func (p closePayload) Validate() error {
	err := p.Envelope.Validate()
	if p.RoundID == "" {
		err = errors.Join(err, errors.New("duels: missing round id"))
	}
	return err
}

// RefreshScoreboardTask re-renders a round's scoreboard message.
type RefreshScoreboardTask struct {
	proj *projection.Projection[Scoreboard]
}

// NewRefreshScoreboardTask wires the scoreboard refresh handler.
func NewRefreshScoreboardTask(proj *projection.Projection[Scoreboard]) *RefreshScoreboardTask {
	return &RefreshScoreboardTask{proj: proj}
}

func (t *RefreshScoreboardTask) Name() string { return refresh.JobDuelScoreboard }

func (t *RefreshScoreboardTask) Handle(ctx context.Context, p refresh.Payload) error {
	ctx = jobs.WithCorrelationID(ctx, p.CorrelationID)
	return t.proj.Refresh(ctx, p.TenantID, p.ResourceID)
}

// CloseRoundTask closes a round when its scheduled end arrives.
type CloseRoundTask struct {
	svc *Service
}

// NewCloseRoundTask wires the scheduled round-close handler.
func NewCloseRoundTask(svc *Service) *CloseRoundTask {
	return &CloseRoundTask{svc: svc}
}

func (t *CloseRoundTask) Name() string { return JobCloseRound }

func (t *CloseRoundTask) Handle(ctx context.Context, p closePayload) error {
	ctx = jobs.WithCorrelationID(ctx, p.CorrelationID)
	_, err := t.svc.CloseRound(ctx, p.TenantID, p.RoundID)
	return err
}
