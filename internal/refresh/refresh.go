// Package refresh maps projection refresh kinds to their job queue
// submission policy. Event handlers call Request instead of enqueueing
// directly; bursts of requests for the same resource collapse into a
// single queued job because a refresh is an idempotent re-render of
// current state, not a delta.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/astralis-bot/astralis/internal/jobs"
	"github.com/astralis-bot/astralis/pkg/queue"
)

// ErrUnknownKind is returned when Request is called with a kind that
// has no policy entry.
var ErrUnknownKind = errors.New("refresh: unknown refresh kind")

// Kind identifies a projection that can be re-rendered.
type Kind string

const (
	KindPairDashboard   Kind = "pair_dashboard"
	KindDuelScoreboard  Kind = "duel_scoreboard"
	KindRaidStatus      Kind = "raid_status"
	KindLeaderboardCard Kind = "leaderboard_card"
)

// Job names consumed by the feature packages' handler registrations.
const (
	JobPairDashboard   = "pairs:refresh_dashboard"
	JobDuelScoreboard  = "duels:refresh_scoreboard"
	JobRaidStatus      = "raids:refresh_status"
	JobLeaderboardCard = "leaderboard:refresh_card"
)

// Payload is the body of every refresh job. ResourceID scopes the
// refresh within the tenant (round id, raid id, month key, or the
// tenant id itself for singleton projections).
type Payload struct {
	jobs.Envelope
	ResourceID string `json:"resource_id"`
}

// Validate checks the embedded envelope plus the resource id.
func (p Payload) Validate() error {
	err := p.Envelope.Validate()
	if p.ResourceID == "" {
		err = errors.Join(err, errors.New("refresh: missing resource id"))
	}
	return err
}

// policy holds the static submission parameters for one refresh kind.
type policy struct {
	jobName    string
	window     time.Duration
	maxRetries int
}

var policies = map[Kind]policy{
	KindPairDashboard:   {jobName: JobPairDashboard, window: 15 * time.Second, maxRetries: 5},
	KindDuelScoreboard:  {jobName: JobDuelScoreboard, window: 10 * time.Second, maxRetries: 5},
	KindRaidStatus:      {jobName: JobRaidStatus, window: 10 * time.Second, maxRetries: 5},
	KindLeaderboardCard: {jobName: JobLeaderboardCard, window: 30 * time.Second, maxRetries: 5},
}

// Service submits refresh jobs according to the per-kind policy table.
type Service struct {
	enqueuer queue.Enqueuer
	log      *slog.Logger
}

// NewService returns a refresh service backed by the given enqueuer.
func NewService(enqueuer queue.Enqueuer, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{enqueuer: enqueuer, log: log}
}

// Request submits a refresh job for the given kind. Requests for the
// same kind and resource within the kind's coalescing window collapse
// into a single queued job.
func (s *Service) Request(ctx context.Context, kind Kind, p Payload) error {
	pol, ok := policies[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err := p.Validate(); err != nil {
		return err
	}

	key := CoalesceKey(kind, p.TenantID, p.ResourceID)
	err := s.enqueuer.Enqueue(ctx, pol.jobName, p,
		queue.WithCoalesceKey(key),
		queue.WithCoalesceWindow(pol.window),
		queue.WithMaxAttempts(pol.maxRetries),
	)
	if err != nil {
		return fmt.Errorf("refresh: enqueue %s: %w", pol.jobName, err)
	}

	s.log.DebugContext(ctx, "refresh requested",
		slog.String("kind", string(kind)),
		slog.String("tenant_id", p.TenantID),
		slog.String("resource_id", p.ResourceID),
	)
	return nil
}

// CoalesceKey builds the deduplication token for a refresh submission.
func CoalesceKey(kind Kind, tenantID, resourceID string) string {
	return string(kind) + ":" + tenantID + ":" + resourceID
}
