// Package pglock guards single-active-instance mutations with Postgres
// transaction-scoped advisory locks.
//
// The locks use try semantics: contention is an immediate error, never
// a queue. A competing "start round" while one is in flight should be
// rejected to its caller, not serialized behind the winner. Locks are
// released by Postgres when the transaction ends, so there is no unlock
// path to forget and crash-safety comes for free.
package pglock

import (
	"context"
	"errors"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/astralis-bot/astralis/pkg/db"
)

// ErrLockHeld is returned when the advisory lock is already taken.
// This is a user-facing "already in progress" condition, not a bug.
var ErrLockHeld = errors.New("pglock: lock already held")

// WithLockedTx runs fn inside a transaction that holds the advisory
// lock for (tenantID, feature). If the lock is unavailable the
// transaction is rolled back immediately and ErrLockHeld returned.
func WithLockedTx(ctx context.Context, pool *pgxpool.Pool, tenantID, feature string, fn func(tx pgx.Tx) error) error {
	return db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		var acquired bool
		err := tx.QueryRow(ctx,
			`SELECT pg_try_advisory_xact_lock($1, $2)`,
			lockKey(tenantID), lockKey(feature),
		).Scan(&acquired)
		if err != nil {
			return err
		}
		if !acquired {
			return ErrLockHeld
		}
		return fn(tx)
	})
}

// lockKey hashes a string into the int32 space Postgres advisory locks
// expect. FNV-1a keeps the mapping deterministic across processes.
func lockKey(s string) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int32(h.Sum32())
}
