// Package raids runs cooperative guild raids: members contribute toward
// a shared goal, progress is rendered on a live status board, and a
// finished raid pays leaderboard points. Starting a raid takes the same
// advisory-lock guard as duel rounds so only one raid runs per guild.
package raids

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
	"github.com/astralis-bot/astralis/pkg/pglock"
)

var (
	// ErrRaidActive is returned by Start while a raid is running.
	ErrRaidActive = errors.New("raids: a raid is already active")
	// ErrNoActiveRaid is returned when a contribution has no target.
	ErrNoActiveRaid = errors.New("raids: no active raid")
	// ErrInvalidAmount is returned for non-positive contributions.
	ErrInvalidAmount = errors.New("raids: contribution must be positive")
)

const lockFeature = "raids"

// Raid is one cooperative goal per guild.
type Raid struct {
	ID       string
	GuildID  string
	Name     string
	Goal     int64
	Progress int64
	Status   string
	StartsAt time.Time
	EndsAt   *time.Time
}

// PointsSink receives leaderboard points for raid contributions.
type PointsSink interface {
	AddPoints(ctx context.Context, guildID, userID string, points int64) error
}

// Service owns raid lifecycle and contributions.
type Service struct {
	pool    *pgxpool.Pool
	refresh *refresh.Service
	points  PointsSink
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

// NewService wires the raid service.
func NewService(pool *pgxpool.Pool, refreshSvc *refresh.Service, points PointsSink, opts ...Option) *Service {
	s := &Service{pool: pool, refresh: refreshSvc, points: points, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens a raid for the guild. At most one raid runs per guild.
func (s *Service) Start(ctx context.Context, guildID, name string, goal int64, until time.Time) (Raid, error) {
	if goal <= 0 {
		return Raid{}, fmt.Errorf("raids: goal must be positive, got %d", goal)
	}

	var raid Raid
	err := pglock.WithLockedTx(ctx, s.pool, guildID, lockFeature, func(tx pgx.Tx) error {
		var active bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM raids WHERE guild_id = $1 AND status = 'active')`,
			guildID,
		).Scan(&active)
		if err != nil {
			return fmt.Errorf("check active raid: %w", err)
		}
		if active {
			return ErrRaidActive
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO raids (guild_id, name, goal, status, ends_at)
			VALUES ($1, $2, $3, 'active', $4)
			RETURNING id, guild_id, name, goal, progress, status, starts_at, ends_at`,
			guildID, name, goal, until,
		).Scan(&raid.ID, &raid.GuildID, &raid.Name, &raid.Goal,
			&raid.Progress, &raid.Status, &raid.StartsAt, &raid.EndsAt)
		if err != nil {
			return fmt.Errorf("insert raid: %w", err)
		}
		return nil
	})
	if errors.Is(err, pglock.ErrLockHeld) {
		return Raid{}, ErrRaidActive
	}
	if err != nil {
		return Raid{}, fmt.Errorf("raids: start: %w", err)
	}

	s.requestStatusRefresh(ctx, guildID, raid.ID)
	s.log.InfoContext(ctx, "raid started",
		slog.String("guild_id", guildID),
		slog.String("raid_id", raid.ID),
		slog.Int64("goal", raid.Goal),
	)
	return raid, nil
}

// Contribute adds a member's amount to the active raid. The raid flips
// to won inside the same transaction that crosses the goal, so exactly
// one contribution observes the win.
func (s *Service) Contribute(ctx context.Context, guildID, userID string, amount int64) (Raid, bool, error) {
	if amount <= 0 {
		return Raid{}, false, ErrInvalidAmount
	}

	var raid Raid
	var won bool
	err := pglock.WithLockedTx(ctx, s.pool, guildID, lockFeature, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT id, guild_id, name, goal, progress, status, starts_at, ends_at
			FROM raids
			WHERE guild_id = $1 AND status = 'active'`,
			guildID,
		).Scan(&raid.ID, &raid.GuildID, &raid.Name, &raid.Goal,
			&raid.Progress, &raid.Status, &raid.StartsAt, &raid.EndsAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNoActiveRaid
		}
		if err != nil {
			return fmt.Errorf("load active raid: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO raid_contributions (raid_id, user_id, amount, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (raid_id, user_id) DO UPDATE
			SET amount = raid_contributions.amount + EXCLUDED.amount, updated_at = now()`,
			raid.ID, userID, amount,
		)
		if err != nil {
			return fmt.Errorf("record contribution: %w", err)
		}

		raid.Progress += amount
		if raid.Progress >= raid.Goal {
			raid.Status = "won"
			won = true
		}
		_, err = tx.Exec(ctx,
			`UPDATE raids SET progress = $2, status = $3 WHERE id = $1`,
			raid.ID, raid.Progress, raid.Status,
		)
		if err != nil {
			return fmt.Errorf("update raid progress: %w", err)
		}
		return nil
	})
	if errors.Is(err, pglock.ErrLockHeld) {
		// Another contribution holds the lock; the caller can retry.
		return Raid{}, false, ErrRaidActive
	}
	if err != nil {
		return Raid{}, false, fmt.Errorf("raids: contribute: %w", err)
	}

	if err := s.points.AddPoints(ctx, guildID, userID, amount); err != nil {
		s.log.ErrorContext(ctx, "raid points accrual failed",
			slog.String("guild_id", guildID), slog.String("user_id", userID), slog.Any("error", err))
	}

	s.requestStatusRefresh(ctx, guildID, raid.ID)
	return raid, won, nil
}

// ExpireOverdue closes active raids whose deadline passed without the
// goal being met. Returns how many raids were expired.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE raids
		SET status = 'expired'
		WHERE status = 'active' AND ends_at IS NOT NULL AND ends_at < now()
		RETURNING guild_id, id`,
	)
	if err != nil {
		return 0, fmt.Errorf("raids: expire overdue: %w", err)
	}
	defer rows.Close()

	type expired struct{ guildID, raidID string }
	var all []expired
	for rows.Next() {
		var e expired
		if err := rows.Scan(&e.guildID, &e.raidID); err != nil {
			return 0, fmt.Errorf("raids: scan expired raid: %w", err)
		}
		all = append(all, e)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("raids: expire overdue: %w", err)
	}

	for _, e := range all {
		s.requestStatusRefresh(ctx, e.guildID, e.raidID)
	}
	return len(all), nil
}

func (s *Service) requestStatusRefresh(ctx context.Context, guildID, raidID string) {
	p := refresh.Payload{
		Envelope: jobs.Envelope{
			CorrelationID: id.NewCorrelationID(),
			TenantID:      guildID,
			Feature:       "raids",
			Action:        "refresh",
		},
		ResourceID: raidID,
	}
	if err := s.refresh.Request(ctx, refresh.KindRaidStatus, p); err != nil {
		s.log.ErrorContext(ctx, "raid status refresh request failed",
			slog.String("guild_id", guildID), slog.Any("error", err))
	}
}
