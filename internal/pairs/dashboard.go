package pairs

import (
	"context"
	"fmt"

	"github.com/astralis-bot/astralis/internal/jobs"
	"github.com/astralis-bot/astralis/internal/projection"
	"github.com/astralis-bot/astralis/internal/refresh"
	"github.com/astralis-bot/astralis/internal/tenant"
	"github.com/astralis-bot/astralis/pkg/claim"
	"github.com/astralis-bot/astralis/pkg/platform"
	"github.com/astralis-bot/astralis/pkg/queue"
)

// Dashboard is the rendered state of a guild's pairs.
type Dashboard struct {
	GuildID string
	Pairs   []Pair
}

// LoadDashboard gathers the guild's pairs for rendering.
func (s *Service) LoadDashboard(ctx context.Context, guildID, _ string) (Dashboard, error) {
	pairs, err := s.List(ctx, guildID)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{GuildID: guildID, Pairs: pairs}, nil
}

// RenderDashboard formats the pair dashboard as message content.
func RenderDashboard(d Dashboard) platform.Content {
	fields := make([]platform.Field, 0, len(d.Pairs))
	for _, p := range d.Pairs {
		fields = append(fields, platform.Field{
			Name:  fmt.Sprintf("<@%s> + <@%s>", p.MemberA, p.MemberB),
			Value: fmt.Sprintf("affinity %d", p.Affinity),
		})
	}
	if len(fields) == 0 {
		fields = append(fields, platform.Field{Name: "No pairs yet", Value: "Rooms appear here once members match."})
	}

	return platform.Content{
		Embed: &platform.Embed{
			Title:  "Pair Rooms",
			Fields: fields,
			Footer: fmt.Sprintf("%d active pairs", len(d.Pairs)),
		},
	}
}

// NewDashboardProjection builds the per-guild dashboard projection.
func NewDashboardProjection(
	svc *Service,
	store *projection.Store,
	refresher *claim.Refresher,
	api platform.Client,
	tenants *tenant.Service,
	opts ...projection.ProjectionOption,
) *projection.Projection[Dashboard] {
	channel := func(ctx context.Context, guildID string) (string, error) {
		st, err := tenants.Settings(ctx, guildID)
		if err != nil {
			return "", err
		}
		return st.PairsChannelID, nil
	}
	return projection.New("pairs", store, refresher, api,
		svc.LoadDashboard, RenderDashboard, channel, opts...)
}

// QueueOptions registers this package's job handlers.
func QueueOptions(dashboard *RefreshDashboardTask) []queue.Option {
	return []queue.Option{
		queue.WithTask[refresh.Payload](dashboard),
	}
}

// RefreshDashboardTask re-renders a guild's pair dashboard message.
type RefreshDashboardTask struct {
	proj *projection.Projection[Dashboard]
}

// NewRefreshDashboardTask wires the dashboard refresh handler.
func NewRefreshDashboardTask(proj *projection.Projection[Dashboard]) *RefreshDashboardTask {
	return &RefreshDashboardTask{proj: proj}
}

func (t *RefreshDashboardTask) Name() string { return refresh.JobPairDashboard }

func (t *RefreshDashboardTask) Handle(ctx context.Context, p refresh.Payload) error {
	ctx = jobs.WithCorrelationID(ctx, p.CorrelationID)
	return t.proj.Refresh(ctx, p.TenantID, p.ResourceID)
}
