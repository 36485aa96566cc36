package pairs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderMembers(t *testing.T) {
	t.Parallel()

	a, b := orderMembers("u2", "u1")
	assert.Equal(t, "u1", a)
	assert.Equal(t, "u2", b)

	a, b = orderMembers("u1", "u2")
	assert.Equal(t, "u1", a)
	assert.Equal(t, "u2", b)
}

func TestRenderDashboard(t *testing.T) {
	t.Parallel()

	content := RenderDashboard(Dashboard{
		GuildID: "g1",
		Pairs: []Pair{
			{MemberA: "u1", MemberB: "u2", Affinity: 7},
			{MemberA: "u3", MemberB: "u4", Affinity: 2},
		},
	})

	require.NotNil(t, content.Embed)
	assert.Equal(t, "Pair Rooms", content.Embed.Title)
	require.Len(t, content.Embed.Fields, 2)
	assert.Contains(t, content.Embed.Fields[0].Name, "u1")
	assert.Equal(t, "affinity 7", content.Embed.Fields[0].Value)
	assert.Equal(t, "2 active pairs", content.Embed.Footer)
}

func TestRenderDashboard_Empty(t *testing.T) {
	t.Parallel()

	content := RenderDashboard(Dashboard{GuildID: "g1"})
	require.NotNil(t, content.Embed)
	require.Len(t, content.Embed.Fields, 1)
	assert.Equal(t, "No pairs yet", content.Embed.Fields[0].Name)
}
