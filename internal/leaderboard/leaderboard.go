// Package leaderboard keeps monthly point totals per guild and renders
// them as a single live card message. Points arrive from the other
// features (duel wins, raid contributions); the card is re-rendered
// from totals on every refresh.
package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/astralis-bot/astralis/internal/projection"
	"github.com/astralis-bot/astralis/internal/tenant"
	"github.com/astralis-bot/astralis/pkg/claim"
	"github.com/astralis-bot/astralis/pkg/platform"
)

// cardSize bounds how many entries the card shows.
const cardSize = 10

// MonthKey formats the month bucket for a point total.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Entry is one member's monthly total.
type Entry struct {
	UserID string
	Points int64
}

// Card is the rendered state of one month's standings.
type Card struct {
	GuildID  string
	MonthKey string
	Entries  []Entry
}

// Service owns point accrual and card state.
type Service struct {
	pool *pgxpool.Pool
	now  func() time.Time
	log  *slog.Logger
}

// Option configures the service.
type Option func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService returns a leaderboard service over the given pool.
func NewService(pool *pgxpool.Pool, opts ...Option) *Service {
	s := &Service{pool: pool, now: time.Now, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const addPointsQuery = `
	INSERT INTO leaderboard_scores (guild_id, user_id, month_key, points, updated_at)
	VALUES ($1, $2, $3, $4, now())
	ON CONFLICT (guild_id, user_id, month_key) DO UPDATE
	SET points = leaderboard_scores.points + EXCLUDED.points, updated_at = now()`

// AddPoints accrues points for the member in the current month.
func (s *Service) AddPoints(ctx context.Context, guildID, userID string, points int64) error {
	if points == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, addPointsQuery, guildID, userID, MonthKey(s.now()), points); err != nil {
		return fmt.Errorf("leaderboard: add points: %w", err)
	}
	return nil
}

// AddPointsTx accrues points inside the caller's transaction, so the
// accrual commits or rolls back with the caller's own writes.
func (s *Service) AddPointsTx(ctx context.Context, tx pgx.Tx, guildID, userID string, points int64) error {
	if points == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, addPointsQuery, guildID, userID, MonthKey(s.now()), points); err != nil {
		return fmt.Errorf("leaderboard: add points: %w", err)
	}
	return nil
}

// LoadCard returns the month's standings. The resourceID is the month
// key; an empty one means the current month.
func (s *Service) LoadCard(ctx context.Context, guildID, resourceID string) (Card, error) {
	monthKey := resourceID
	if monthKey == "" || monthKey == guildID {
		// Singleton projections carry the tenant id as their resource.
		monthKey = MonthKey(s.now())
	}

	rows, err := s.pool.Query(ctx, `
		SELECT user_id, points
		FROM leaderboard_scores
		WHERE guild_id = $1 AND month_key = $2 AND points > 0
		ORDER BY points DESC, user_id
		LIMIT $3`,
		guildID, monthKey, cardSize,
	)
	if err != nil {
		return Card{}, fmt.Errorf("leaderboard: load card: %w", err)
	}
	defer rows.Close()

	card := Card{GuildID: guildID, MonthKey: monthKey}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.UserID, &e.Points); err != nil {
			return Card{}, fmt.Errorf("leaderboard: scan entry: %w", err)
		}
		card.Entries = append(card.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return Card{}, fmt.Errorf("leaderboard: load card: %w", err)
	}
	return card, nil
}

// Guilds lists every guild with points in the given month.
func (s *Service) Guilds(ctx context.Context, monthKey string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT guild_id FROM leaderboard_scores WHERE month_key = $1`,
		monthKey,
	)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: list guilds: %w", err)
	}
	defer rows.Close()

	var guilds []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("leaderboard: scan guild: %w", err)
		}
		guilds = append(guilds, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leaderboard: list guilds: %w", err)
	}
	return guilds, nil
}

// RenderCard formats the month's standings as message content.
func RenderCard(card Card) platform.Content {
	medals := []string{"🥇", "🥈", "🥉"}

	fields := make([]platform.Field, 0, len(card.Entries))
	for i, e := range card.Entries {
		rank := fmt.Sprintf("#%d", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		fields = append(fields, platform.Field{
			Name:  fmt.Sprintf("%s <@%s>", rank, e.UserID),
			Value: fmt.Sprintf("%d pts", e.Points),
		})
	}
	if len(fields) == 0 {
		fields = append(fields, platform.Field{Name: "No points yet", Value: "Win duels and join raids to score."})
	}

	return platform.Content{
		Embed: &platform.Embed{
			Title:  fmt.Sprintf("Monthly Leaderboard (%s)", card.MonthKey),
			Fields: fields,
		},
	}
}

// NewCardProjection builds the monthly card message projection.
func NewCardProjection(
	svc *Service,
	store *projection.Store,
	refresher *claim.Refresher,
	api platform.Client,
	tenants *tenant.Service,
	opts ...projection.ProjectionOption,
) *projection.Projection[Card] {
	channel := func(ctx context.Context, guildID string) (string, error) {
		st, err := tenants.Settings(ctx, guildID)
		if err != nil {
			return "", err
		}
		return st.LeaderboardChannelID, nil
	}
	return projection.New("leaderboard", store, refresher, api,
		svc.LoadCard, RenderCard, channel, opts...)
}
