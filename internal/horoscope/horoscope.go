// Package horoscope posts one pinned weekly horoscope message per
// guild. A post row walks pending -> processing -> posted; a worker
// that dies mid-post leaves the row in processing, and later attempts
// may reclaim it a bounded number of times before it is written off as
// abandoned. Each state transition is a conditional UPDATE, so two
// workers can never both own the same week.
package horoscope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotClaimed is returned when the week's post is owned by another
	// worker, already posted, or abandoned.
	ErrNotClaimed = errors.New("horoscope: post not claimable")
)

const (
	// maxClaimAttempts bounds how many times a stale processing row may
	// be reclaimed before it is marked abandoned.
	maxClaimAttempts = 3

	// staleAfter is how long a processing claim may sit before another
	// worker may steal it.
	staleAfter = 10 * time.Minute
)

// WeekKey formats the ISO week bucket for a post.
func WeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// Post is one guild's weekly horoscope row.
type Post struct {
	ID            string
	GuildID       string
	WeekKey       string
	Status        string
	ClaimAttempts int
	PostedAt      *time.Time
}

// Service owns the weekly post lifecycle.
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

// NewService returns a horoscope service over the given pool.
func NewService(pool *pgxpool.Pool, opts ...Option) *Service {
	s := &Service{pool: pool, now: time.Now, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureWeek creates the pending row for the guild's week if it does
// not exist yet. Safe to call from every tick.
func (s *Service) EnsureWeek(ctx context.Context, guildID, weekKey string) error {
	const q = `
		INSERT INTO horoscope_posts (guild_id, week_key, status)
		VALUES ($1, $2, 'pending')
		ON CONFLICT (guild_id, week_key) DO NOTHING`

	if _, err := s.pool.Exec(ctx, q, guildID, weekKey); err != nil {
		return fmt.Errorf("horoscope: ensure week row: %w", err)
	}
	return nil
}

// ClaimPost takes ownership of the week's post. It claims a pending
// row, or steals a processing row whose claim went stale, up to the
// attempt bound. Beyond the bound the row is marked abandoned and
// ErrNotClaimed returned, which breaks the reclaim loop for good.
func (s *Service) ClaimPost(ctx context.Context, guildID, weekKey string) error {
	const q = `
		UPDATE horoscope_posts
		SET status = 'processing', claimed_at = now(), claim_attempts = claim_attempts + 1
		WHERE guild_id = $1 AND week_key = $2
		  AND (status = 'pending'
		       OR (status = 'processing'
		           AND claimed_at < now() - $3::interval
		           AND claim_attempts < $4))
		RETURNING claim_attempts`

	interval := fmt.Sprintf("%d seconds", int(staleAfter.Seconds()))
	var attempts int
	err := s.pool.QueryRow(ctx, q, guildID, weekKey, interval, maxClaimAttempts).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		if abandonErr := s.abandonIfExhausted(ctx, guildID, weekKey, interval); abandonErr != nil {
			return abandonErr
		}
		return ErrNotClaimed
	}
	if err != nil {
		return fmt.Errorf("horoscope: claim post: %w", err)
	}

	if attempts > 1 {
		s.log.WarnContext(ctx, "reclaimed stale horoscope post",
			slog.String("guild_id", guildID),
			slog.String("week", weekKey),
			slog.Int("attempt", attempts),
		)
	}
	return nil
}

// abandonIfExhausted retires a stale processing row that has used up
// its reclaim budget.
func (s *Service) abandonIfExhausted(ctx context.Context, guildID, weekKey, interval string) error {
	const q = `
		UPDATE horoscope_posts
		SET status = 'abandoned'
		WHERE guild_id = $1 AND week_key = $2
		  AND status = 'processing'
		  AND claimed_at < now() - $3::interval
		  AND claim_attempts >= $4`

	tag, err := s.pool.Exec(ctx, q, guildID, weekKey, interval, maxClaimAttempts)
	if err != nil {
		return fmt.Errorf("horoscope: abandon post: %w", err)
	}
	if tag.RowsAffected() > 0 {
		s.log.ErrorContext(ctx, "horoscope post abandoned after repeated reclaims",
			slog.String("guild_id", guildID),
			slog.String("week", weekKey),
		)
	}
	return nil
}

// MarkPosted settles the claimed post. Only the processing owner's
// transition matches.
func (s *Service) MarkPosted(ctx context.Context, guildID, weekKey string) error {
	const q = `
		UPDATE horoscope_posts
		SET status = 'posted', posted_at = now()
		WHERE guild_id = $1 AND week_key = $2 AND status = 'processing'`

	if _, err := s.pool.Exec(ctx, q, guildID, weekKey); err != nil {
		return fmt.Errorf("horoscope: mark posted: %w", err)
	}
	return nil
}

// ConfiguredGuilds lists guilds that have a horoscope channel set.
func (s *Service) ConfiguredGuilds(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT guild_id FROM guild_settings WHERE horoscope_channel_id <> ''`,
	)
	if err != nil {
		return nil, fmt.Errorf("horoscope: list configured guilds: %w", err)
	}
	defer rows.Close()

	var guilds []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("horoscope: scan guild: %w", err)
		}
		guilds = append(guilds, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("horoscope: list configured guilds: %w", err)
	}
	return guilds, nil
}
