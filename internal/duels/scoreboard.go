package duels

import (
	"context"
	"fmt"

	"github.com/astralis-bot/astralis/internal/projection"
	"github.com/astralis-bot/astralis/internal/tenant"
	"github.com/astralis-bot/astralis/pkg/claim"
	"github.com/astralis-bot/astralis/pkg/platform"
)

// ScoreboardEntry is one member's standing within a round.
type ScoreboardEntry struct {
	UserID string
	Wins   int
}

// Scoreboard is the rendered state of one round.
type Scoreboard struct {
	Round   Round
	Entries []ScoreboardEntry
	Pending int
}

// LoadScoreboard gathers the round header and the win tally.
func (s *Service) LoadScoreboard(ctx context.Context, guildID, roundID string) (Scoreboard, error) {
	var sb Scoreboard
	err := s.pool.QueryRow(ctx, `
		SELECT id, guild_id, number, status, started_by, started_at, ends_at, closed_at
		FROM duel_rounds
		WHERE id = $1 AND guild_id = $2`,
		roundID, guildID,
	).Scan(&sb.Round.ID, &sb.Round.GuildID, &sb.Round.Number, &sb.Round.Status,
		&sb.Round.StartedBy, &sb.Round.StartedAt, &sb.Round.EndsAt, &sb.Round.ClosedAt)
	if err != nil {
		return Scoreboard{}, fmt.Errorf("duels: load round: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT winner_id, COUNT(*)
		FROM duels
		WHERE round_id = $1 AND status = 'resolved' AND winner_id IS NOT NULL
		GROUP BY winner_id
		ORDER BY COUNT(*) DESC, winner_id`,
		roundID,
	)
	if err != nil {
		return Scoreboard{}, fmt.Errorf("duels: load scoreboard: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e ScoreboardEntry
		if err := rows.Scan(&e.UserID, &e.Wins); err != nil {
			return Scoreboard{}, fmt.Errorf("duels: scan scoreboard entry: %w", err)
		}
		sb.Entries = append(sb.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return Scoreboard{}, fmt.Errorf("duels: load scoreboard: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM duels WHERE round_id = $1 AND status IN ('pending', 'accepted')`,
		roundID,
	).Scan(&sb.Pending)
	if err != nil {
		return Scoreboard{}, fmt.Errorf("duels: count pending duels: %w", err)
	}
	return sb, nil
}

// RenderScoreboard formats a scoreboard as message content. Pure, so
// every refresh is a full re-render of current state.
func RenderScoreboard(sb Scoreboard) platform.Content {
	title := fmt.Sprintf("Duel Round #%d", sb.Round.Number)
	if sb.Round.Status == "closed" {
		title += " (final)"
	}

	fields := make([]platform.Field, 0, len(sb.Entries)+1)
	for i, e := range sb.Entries {
		fields = append(fields, platform.Field{
			Name:  fmt.Sprintf("#%d <@%s>", i+1, e.UserID),
			Value: fmt.Sprintf("%d wins", e.Wins),
		})
	}
	if sb.Pending > 0 {
		fields = append(fields, platform.Field{
			Name:  "In progress",
			Value: fmt.Sprintf("%d open duels", sb.Pending),
		})
	}
	if len(sb.Entries) == 0 && sb.Pending == 0 {
		fields = append(fields, platform.Field{Name: "No duels yet", Value: "Challenge someone!"})
	}

	return platform.Content{Embed: &platform.Embed{Title: title, Fields: fields}}
}

// NewScoreboardProjection builds the live scoreboard message projection.
func NewScoreboardProjection(
	svc *Service,
	store *projection.Store,
	refresher *claim.Refresher,
	api platform.Client,
	tenants *tenant.Service,
	opts ...projection.ProjectionOption,
) *projection.Projection[Scoreboard] {
	channel := func(ctx context.Context, guildID string) (string, error) {
		st, err := tenants.Settings(ctx, guildID)
		if err != nil {
			return "", err
		}
		return st.DuelsChannelID, nil
	}
	return projection.New("duels", store, refresher, api,
		svc.LoadScoreboard, RenderScoreboard, channel, opts...)
}
