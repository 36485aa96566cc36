package leaderboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "2026-09", MonthKey(time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)))

	// Month boundaries bucket by UTC, not local wall clock.
	loc := time.FixedZone("UTC+10", 10*3600)
	assert.Equal(t, "2026-08", MonthKey(time.Date(2026, 9, 1, 5, 0, 0, 0, loc)))
}

func TestRenderCard_MedalsAndRanks(t *testing.T) {
	t.Parallel()

	content := RenderCard(Card{
		GuildID:  "g1",
		MonthKey: "2026-09",
		Entries: []Entry{
			{UserID: "u1", Points: 120},
			{UserID: "u2", Points: 90},
			{UserID: "u3", Points: 50},
			{UserID: "u4", Points: 10},
		},
	})

	require.NotNil(t, content.Embed)
	assert.Equal(t, "Monthly Leaderboard (2026-09)", content.Embed.Title)
	require.Len(t, content.Embed.Fields, 4)
	assert.Contains(t, content.Embed.Fields[0].Name, "🥇")
	assert.Contains(t, content.Embed.Fields[3].Name, "#4")
	assert.Equal(t, "10 pts", content.Embed.Fields[3].Value)
}

func TestRenderCard_Empty(t *testing.T) {
	t.Parallel()

	content := RenderCard(Card{GuildID: "g1", MonthKey: "2026-09"})
	require.NotNil(t, content.Embed)
	require.Len(t, content.Embed.Fields, 1)
	assert.Equal(t, "No points yet", content.Embed.Fields[0].Name)
}
