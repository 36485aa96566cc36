// Package storage holds the embedded schema migrations and the shared
// Postgres store implementations that back the schedule registry.
package storage

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/astralis-bot/astralis/pkg/db"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
	return db.Migrate(ctx, pool, migrations, "astralis_schema_version", log)
}

// ScheduleStore persists per-schedule enabled flags. Absent rows mean
// the schedule runs with its default (enabled).
type ScheduleStore struct {
	pool *pgxpool.Pool
}

// NewScheduleStore returns a store over the schedule_overrides table.
func NewScheduleStore(pool *pgxpool.Pool) *ScheduleStore {
	return &ScheduleStore{pool: pool}
}

// Enabled reports whether the named schedule is enabled. A schedule
// with no override row is enabled.
func (s *ScheduleStore) Enabled(ctx context.Context, name string) (bool, error) {
	const q = `SELECT enabled FROM schedule_overrides WHERE name = $1`

	var enabled bool
	rows, err := s.pool.Query(ctx, q, name)
	if err != nil {
		return false, fmt.Errorf("storage: query schedule override: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return false, fmt.Errorf("storage: query schedule override: %w", err)
		}
		return true, nil
	}
	if err := rows.Scan(&enabled); err != nil {
		return false, fmt.Errorf("storage: scan schedule override: %w", err)
	}
	return enabled, nil
}

// SetEnabled upserts the override row for the named schedule.
func (s *ScheduleStore) SetEnabled(ctx context.Context, name string, enabled bool) error {
	const q = `
		INSERT INTO schedule_overrides (name, enabled, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET enabled = EXCLUDED.enabled, updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, name, enabled); err != nil {
		return fmt.Errorf("storage: set schedule override: %w", err)
	}
	return nil
}
