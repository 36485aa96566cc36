// Package tenant manages per-guild settings: locale, timezone, and the
// home channel for each rendered surface. Reads go through a cache so
// hot paths (every projection refresh resolves a channel) do not hit
// Postgres; writes invalidate explicitly.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/astralis-bot/astralis/pkg/cache"
)

// ErrNotFound is returned when a guild has no settings row.
var ErrNotFound = errors.New("tenant: settings not found")

// Settings is one guild's configuration. Zero-valued channel ids mean
// the surface is not configured and its projections are skipped.
type Settings struct {
	GuildID              string `json:"guild_id"`
	Locale               string `json:"locale"`
	Timezone             string `json:"timezone"`
	HoroscopeChannelID   string `json:"horoscope_channel_id"`
	PairsChannelID       string `json:"pairs_channel_id"`
	DuelsChannelID       string `json:"duels_channel_id"`
	RaidsChannelID       string `json:"raids_channel_id"`
	LeaderboardChannelID string `json:"leaderboard_channel_id"`
}

// Service reads and writes guild settings through a cache.
type Service struct {
	pool  *pgxpool.Pool
	cache cache.Cache[Settings]
	ttl   time.Duration
	log   *slog.Logger
}

// Option configures the service.
type Option func(*Service)

// WithCacheTTL sets how long settings stay cached. Default: 5 minutes.
func WithCacheTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
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

// NewService returns a settings service backed by Postgres and the
// given cache.
func NewService(pool *pgxpool.Pool, c cache.Cache[Settings], opts ...Option) *Service {
	s := &Service{
		pool:  pool,
		cache: c,
		ttl:   5 * time.Minute,
		log:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func cacheKey(guildID string) string {
	return "tenant:settings:" + guildID
}

// Settings returns the guild's settings, loading through the cache.
// Guilds without a row get zero-valued defaults rather than an error,
// so unattended jobs treat "never configured" as "nothing to render".
func (s *Service) Settings(ctx context.Context, guildID string) (Settings, error) {
	return cache.GetOrLoad(ctx, s.cache, cacheKey(guildID), func(ctx context.Context) (Settings, time.Duration, error) {
		settings, err := s.load(ctx, guildID)
		if errors.Is(err, ErrNotFound) {
			return Settings{GuildID: guildID, Locale: "en", Timezone: "UTC"}, s.ttl, nil
		}
		if err != nil {
			return Settings{}, 0, err
		}
		return settings, s.ttl, nil
	})
}

func (s *Service) load(ctx context.Context, guildID string) (Settings, error) {
	const q = `
		SELECT guild_id, locale, timezone,
		       horoscope_channel_id, pairs_channel_id, duels_channel_id,
		       raids_channel_id, leaderboard_channel_id
		FROM guild_settings
		WHERE guild_id = $1`

	var st Settings
	err := s.pool.QueryRow(ctx, q, guildID).Scan(
		&st.GuildID, &st.Locale, &st.Timezone,
		&st.HoroscopeChannelID, &st.PairsChannelID, &st.DuelsChannelID,
		&st.RaidsChannelID, &st.LeaderboardChannelID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Settings{}, ErrNotFound
	}
	if err != nil {
		return Settings{}, fmt.Errorf("tenant: load settings: %w", err)
	}
	return st, nil
}

// Save upserts the guild's settings and invalidates the cached copy.
func (s *Service) Save(ctx context.Context, st Settings) error {
	const q = `
		INSERT INTO guild_settings (
			guild_id, locale, timezone,
			horoscope_channel_id, pairs_channel_id, duels_channel_id,
			raids_channel_id, leaderboard_channel_id, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (guild_id) DO UPDATE SET
			locale = EXCLUDED.locale,
			timezone = EXCLUDED.timezone,
			horoscope_channel_id = EXCLUDED.horoscope_channel_id,
			pairs_channel_id = EXCLUDED.pairs_channel_id,
			duels_channel_id = EXCLUDED.duels_channel_id,
			raids_channel_id = EXCLUDED.raids_channel_id,
			leaderboard_channel_id = EXCLUDED.leaderboard_channel_id,
			updated_at = now()`

	_, err := s.pool.Exec(ctx, q,
		st.GuildID, st.Locale, st.Timezone,
		st.HoroscopeChannelID, st.PairsChannelID, st.DuelsChannelID,
		st.RaidsChannelID, st.LeaderboardChannelID,
	)
	if err != nil {
		return fmt.Errorf("tenant: save settings: %w", err)
	}

	if err := s.cache.Delete(ctx, cacheKey(st.GuildID)); err != nil {
		s.log.WarnContext(ctx, "settings cache invalidation failed",
			slog.String("guild_id", st.GuildID), slog.Any("error", err))
	}
	return nil
}

// ChannelFor returns the guild's channel for the named surface. Unknown
// surfaces resolve to the empty channel.
func (st Settings) ChannelFor(feature string) string {
	switch feature {
	case "horoscope":
		return st.HoroscopeChannelID
	case "pairs":
		return st.PairsChannelID
	case "duels":
		return st.DuelsChannelID
	case "raids":
		return st.RaidsChannelID
	case "leaderboard":
		return st.LeaderboardChannelID
	default:
		return ""
	}
}
