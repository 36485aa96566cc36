// Package schedules embeds the bot's recurring schedule definitions.
package schedules

import (
	_ "embed"

	"github.com/astralis-bot/astralis/pkg/schedule"
)

//go:embed schedules.yaml
var raw []byte

// Definitions parses the embedded schedule list.
func Definitions() ([]schedule.Definition, error) {
	return schedule.ParseDefinitions(raw)
}
