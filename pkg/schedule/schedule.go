// Package schedule reconciles declarative cron definitions against the
// job queue's recurring registrations.
//
// Definitions are immutable within a process lifetime; only the
// per-name enabled flag is mutable, persisted in Postgres and applied
// by re-running reconciliation. Operators toggle schedules through the
// admin surface without redeploying.
package schedule

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownSchedule is returned when a toggle names no definition.
	ErrUnknownSchedule = errors.New("schedule: unknown schedule")

	// ErrInvalidCron is returned for a malformed cron expression.
	ErrInvalidCron = errors.New("schedule: invalid cron expression")

	// ErrDuplicateName is returned when two definitions share a name.
	ErrDuplicateName = errors.New("schedule: duplicate schedule name")

	// ErrMissingName is returned for a definition without a name.
	ErrMissingName = errors.New("schedule: definition name is required")
)

// Definition is one declarative recurring job. Name doubles as the
// queue task name the tick is dispatched to.
type Definition struct {
	Name    string         `yaml:"name"`
	Cron    string         `yaml:"cron"`
	Payload map[string]any `yaml:"payload,omitempty"`
}

// ParseDefinitions unmarshals and validates a YAML definition list.
// Malformed cron expressions are caught here, at boot, rather than
// silently failing to fire later.
func ParseDefinitions(data []byte) ([]Definition, error) {
	var doc struct {
		Schedules []Definition `yaml:"schedules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("schedule: parse definitions: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Schedules))
	for _, def := range doc.Schedules {
		if def.Name == "" {
			return nil, ErrMissingName
		}
		if _, dup := seen[def.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, def.Name)
		}
		seen[def.Name] = struct{}{}

		if err := ValidateCron(def.Cron); err != nil {
			return nil, fmt.Errorf("%s: %w", def.Name, err)
		}
	}

	return doc.Schedules, nil
}

// ValidateCron structurally checks a 5-field cron expression: each
// field a *, number, range, step or range-with-step within the field's
// numeric bounds. Month and weekday names are accepted.
func ValidateCron(expr string) error {
	if len(strings.Fields(expr)) != 5 {
		return fmt.Errorf("%w: %q: want 5 fields (minute hour day month weekday)", ErrInvalidCron, expr)
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrInvalidCron, expr, err)
	}
	return nil
}
