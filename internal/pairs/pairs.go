// Package pairs tracks matched member pairs and their private rooms,
// rendered as one dashboard message per guild. Pair membership is
// stored with the members in canonical order so (a, b) and (b, a) are
// the same pair.
package pairs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/astralis-bot/astralis/internal/jobs"
	"github.com/astralis-bot/astralis/internal/refresh"
	"github.com/astralis-bot/astralis/pkg/id"
)

var (
	// ErrSelfPair is returned when both members are the same user.
	ErrSelfPair = errors.New("pairs: cannot pair a user with themselves")
	// ErrAlreadyPaired is returned when the pair already has a room.
	ErrAlreadyPaired = errors.New("pairs: pair already exists")
	// ErrNotFound is returned when the pair does not exist.
	ErrNotFound = errors.New("pairs: pair not found")
)

// Pair is one matched couple and their room.
type Pair struct {
	ID        string
	GuildID   string
	ChannelID string
	MemberA   string
	MemberB   string
	Affinity  int
	CreatedAt time.Time
}

// Service owns pair room records.
type Service struct {
	pool    *pgxpool.Pool
	refresh *refresh.Service
	log     *slog.Logger
}

// Option configures the service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService wires the pair service.
func NewService(pool *pgxpool.Pool, refreshSvc *refresh.Service, opts ...Option) *Service {
	s := &Service{pool: pool, refresh: refreshSvc, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// orderMembers puts a pair's members in canonical order.
func orderMembers(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// Create records a new pair and its room channel.
func (s *Service) Create(ctx context.Context, guildID, memberA, memberB, channelID string) (Pair, error) {
	if memberA == memberB {
		return Pair{}, ErrSelfPair
	}
	a, b := orderMembers(memberA, memberB)

	var p Pair
	err := s.pool.QueryRow(ctx, `
		INSERT INTO pair_rooms (guild_id, channel_id, member_a, member_b)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id, member_a, member_b) DO NOTHING
		RETURNING id, guild_id, channel_id, member_a, member_b, affinity, created_at`,
		guildID, channelID, a, b,
	).Scan(&p.ID, &p.GuildID, &p.ChannelID, &p.MemberA, &p.MemberB, &p.Affinity, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Pair{}, ErrAlreadyPaired
	}
	if err != nil {
		return Pair{}, fmt.Errorf("pairs: create pair: %w", err)
	}

	s.requestDashboardRefresh(ctx, guildID)
	return p, nil
}

// BumpAffinity adds delta to a pair's affinity score.
func (s *Service) BumpAffinity(ctx context.Context, guildID, memberA, memberB string, delta int) error {
	a, b := orderMembers(memberA, memberB)

	tag, err := s.pool.Exec(ctx, `
		UPDATE pair_rooms
		SET affinity = affinity + $4
		WHERE guild_id = $1 AND member_a = $2 AND member_b = $3`,
		guildID, a, b, delta,
	)
	if err != nil {
		return fmt.Errorf("pairs: bump affinity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.requestDashboardRefresh(ctx, guildID)
	return nil
}

// Dissolve removes a pair and its room record.
func (s *Service) Dissolve(ctx context.Context, guildID, memberA, memberB string) error {
	a, b := orderMembers(memberA, memberB)

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM pair_rooms WHERE guild_id = $1 AND member_a = $2 AND member_b = $3`,
		guildID, a, b,
	)
	if err != nil {
		return fmt.Errorf("pairs: dissolve pair: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.requestDashboardRefresh(ctx, guildID)
	return nil
}

// List returns the guild's pairs ordered by affinity.
func (s *Service) List(ctx context.Context, guildID string) ([]Pair, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, guild_id, channel_id, member_a, member_b, affinity, created_at
		FROM pair_rooms
		WHERE guild_id = $1
		ORDER BY affinity DESC, created_at`,
		guildID,
	)
	if err != nil {
		return nil, fmt.Errorf("pairs: list pairs: %w", err)
	}
	defer rows.Close()

	var pairs []Pair
	for rows.Next() {
		var p Pair
		if err := rows.Scan(&p.ID, &p.GuildID, &p.ChannelID, &p.MemberA, &p.MemberB, &p.Affinity, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("pairs: scan pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pairs: list pairs: %w", err)
	}
	return pairs, nil
}

func (s *Service) requestDashboardRefresh(ctx context.Context, guildID string) {
	p := refresh.Payload{
		Envelope: jobs.Envelope{
			CorrelationID: id.NewCorrelationID(),
			TenantID:      guildID,
			Feature:       "pairs",
			Action:        "refresh",
		},
		// The dashboard is a per-guild singleton.
		ResourceID: guildID,
	}
	if err := s.refresh.Request(ctx, refresh.KindPairDashboard, p); err != nil {
		s.log.ErrorContext(ctx, "dashboard refresh request failed",
			slog.String("guild_id", guildID), slog.Any("error", err))
	}
}
