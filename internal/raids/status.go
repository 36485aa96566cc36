package raids

import (
	"context"
	"fmt"
	"strings"

	"github.com/astralis-bot/astralis/internal/projection"
	"github.com/astralis-bot/astralis/internal/tenant"
	"github.com/astralis-bot/astralis/pkg/claim"
	"github.com/astralis-bot/astralis/pkg/platform"
)

// statusBarWidth is the character width of the progress bar.
const statusBarWidth = 20

// Contributor is one member's total on the status board.
type Contributor struct {
	UserID string
	Amount int64
}

// Status is the rendered state of one raid.
type Status struct {
	Raid         Raid
	Contributors []Contributor
}

// LoadStatus gathers the raid header and top contributors.
func (s *Service) LoadStatus(ctx context.Context, guildID, raidID string) (Status, error) {
	var st Status
	err := s.pool.QueryRow(ctx, `
		SELECT id, guild_id, name, goal, progress, status, starts_at, ends_at
		FROM raids
		WHERE id = $1 AND guild_id = $2`,
		raidID, guildID,
	).Scan(&st.Raid.ID, &st.Raid.GuildID, &st.Raid.Name, &st.Raid.Goal,
		&st.Raid.Progress, &st.Raid.Status, &st.Raid.StartsAt, &st.Raid.EndsAt)
	if err != nil {
		return Status{}, fmt.Errorf("raids: load raid: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT user_id, amount
		FROM raid_contributions
		WHERE raid_id = $1 AND amount > 0
		ORDER BY amount DESC, user_id
		LIMIT 10`,
		raidID,
	)
	if err != nil {
		return Status{}, fmt.Errorf("raids: load contributors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Contributor
		if err := rows.Scan(&c.UserID, &c.Amount); err != nil {
			return Status{}, fmt.Errorf("raids: scan contributor: %w", err)
		}
		st.Contributors = append(st.Contributors, c)
	}
	if err := rows.Err(); err != nil {
		return Status{}, fmt.Errorf("raids: load contributors: %w", err)
	}
	return st, nil
}

// RenderStatus formats a raid status board as message content.
func RenderStatus(st Status) platform.Content {
	title := fmt.Sprintf("Raid: %s", st.Raid.Name)
	switch st.Raid.Status {
	case "won":
		title += " (victory!)"
	case "expired":
		title += " (failed)"
	}

	fields := []platform.Field{
		{
			Name:  "Progress",
			Value: fmt.Sprintf("%s %d / %d", progressBar(st.Raid.Progress, st.Raid.Goal), st.Raid.Progress, st.Raid.Goal),
		},
	}
	for _, c := range st.Contributors {
		fields = append(fields, platform.Field{
			Name:   fmt.Sprintf("<@%s>", c.UserID),
			Value:  fmt.Sprintf("%d", c.Amount),
			Inline: true,
		})
	}

	return platform.Content{Embed: &platform.Embed{Title: title, Fields: fields}}
}

// progressBar draws a fixed-width bar, clamped at full.
func progressBar(progress, goal int64) string {
	if goal <= 0 {
		return strings.Repeat("░", statusBarWidth)
	}
	filled := int(progress * statusBarWidth / goal)
	if filled > statusBarWidth {
		filled = statusBarWidth
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", statusBarWidth-filled)
}

// NewStatusProjection builds the raid status board projection.
func NewStatusProjection(
	svc *Service,
	store *projection.Store,
	refresher *claim.Refresher,
	api platform.Client,
	tenants *tenant.Service,
	opts ...projection.ProjectionOption,
) *projection.Projection[Status] {
	channel := func(ctx context.Context, guildID string) (string, error) {
		st, err := tenants.Settings(ctx, guildID)
		if err != nil {
			return "", err
		}
		return st.RaidsChannelID, nil
	}
	return projection.New("raids", store, refresher, api,
		svc.LoadStatus, RenderStatus, channel, opts...)
}
