package horoscope

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/astralis-bot/astralis/internal/projection"
	"github.com/astralis-bot/astralis/internal/tenant"
	"github.com/astralis-bot/astralis/pkg/claim"
	"github.com/astralis-bot/astralis/pkg/platform"
)

var signs = []string{
	"Aries", "Taurus", "Gemini", "Cancer", "Leo", "Virgo",
	"Libra", "Scorpio", "Sagittarius", "Capricorn", "Aquarius", "Pisces",
}

var fortunes = []string{
	"The stars favor bold moves this week.",
	"A quiet week. Recharge and plan ahead.",
	"An unexpected ally appears in a familiar place.",
	"Double down on what already works.",
	"Avoid duels on Wednesday. Trust us.",
	"Your next raid contribution counts double in spirit.",
	"Someone in your pair room has news for you.",
	"Fortune follows the early riser this week.",
	"Hold your ground. The leaderboard remembers.",
	"A small kindness returns multiplied.",
	"The week rewards patience over speed.",
	"Say yes to the strange invitation.",
}

// Reading is the rendered state of one guild's weekly horoscope.
type Reading struct {
	GuildID string
	WeekKey string
}

// LoadReading is the projection loader. The reading itself is derived
// deterministically from guild and week, so there is nothing to fetch.
func LoadReading(_ context.Context, guildID, weekKey string) (Reading, error) {
	return Reading{GuildID: guildID, WeekKey: weekKey}, nil
}

// fortuneFor picks a fortune deterministically. The same guild, week,
// and sign always render the same line, so a re-post after a deleted
// message repeats the original reading instead of rerolling it.
func fortuneFor(guildID, weekKey, sign string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(guildID + "|" + weekKey + "|" + sign))
	return fortunes[h.Sum32()%uint32(len(fortunes))]
}

// RenderReading formats the weekly horoscope as message content.
func RenderReading(r Reading) platform.Content {
	fields := make([]platform.Field, 0, len(signs))
	for _, sign := range signs {
		fields = append(fields, platform.Field{
			Name:   sign,
			Value:  fortuneFor(r.GuildID, r.WeekKey, sign),
			Inline: true,
		})
	}
	return platform.Content{
		Embed: &platform.Embed{
			Title:  fmt.Sprintf("Weekly Horoscope (%s)", r.WeekKey),
			Fields: fields,
			Footer: "New readings every Monday.",
		},
	}
}

// NewPostProjection builds the pinned weekly post projection.
func NewPostProjection(
	store *projection.Store,
	refresher *claim.Refresher,
	api platform.Client,
	tenants *tenant.Service,
	opts ...projection.ProjectionOption,
) *projection.Projection[Reading] {
	channel := func(ctx context.Context, guildID string) (string, error) {
		st, err := tenants.Settings(ctx, guildID)
		if err != nil {
			return "", err
		}
		return st.HoroscopeChannelID, nil
	}
	opts = append([]projection.ProjectionOption{projection.WithPin()}, opts...)
	return projection.New("horoscope", store, refresher, api,
		LoadReading, RenderReading, channel, opts...)
}
