// Package db wraps [github.com/jackc/pgx/v5/pgxpool] with connection
// retry, goose migrations and a transaction helper.
//
// Postgres is the single source of truth for all cross-worker
// coordination in this codebase: message ownership claims, round state
// and schedule overrides are all expressed as conditional updates or
// advisory locks against it.
package db
