// Package queue adapts River (Postgres-native job queue) to the
// capability surface the bot backend needs: enqueue with coalescing,
// typed task handlers, and recurring schedules that can be added and
// removed at runtime.
//
// River delivers at least once; handlers in this codebase are idempotent
// re-renders of current state, which is why coalescing duplicate
// submissions by key is safe. The rest of the application depends on
// the Enqueuer and Recurring interfaces, not on River.
//
// # Database Migrations
//
// River needs its own tables (river_job, river_leader, river_queue).
// Run River's migrations before starting the manager; see
// https://riverqueue.com/docs/migrations for the SQL and tooling.
package queue
