package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/astralis-bot/astralis/pkg/claim"
	"github.com/astralis-bot/astralis/pkg/platform"
)

// Store is the Postgres-backed message ownership store. Claim and
// ClearIf are single conditional UPDATEs, so concurrent workers race
// on row-level atomicity rather than on application locks.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a store over the projection_messages table.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Current returns the live record for key, inserting an empty row on
// first sight so later conditional updates have a target.
func (s *Store) Current(ctx context.Context, key claim.Key) (claim.Record, error) {
	// The no-op DO UPDATE makes RETURNING yield a row on both the
	// insert and the conflict path.
	const q = `
		INSERT INTO projection_messages (tenant_id, feature, resource_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, feature, resource_id)
		DO UPDATE SET tenant_id = EXCLUDED.tenant_id
		RETURNING channel_id, COALESCE(message_id, '')`

	var rec claim.Record
	var msgID string
	err := s.pool.QueryRow(ctx, q, key.TenantID, key.Feature, key.ResourceID).
		Scan(&rec.ChannelID, &msgID)
	if err != nil {
		return claim.Record{}, fmt.Errorf("projection: read record %s: %w", key, err)
	}
	rec.MessageID = platform.MessageID(msgID)
	return rec, nil
}

// Claim transitions the row's message id from NULL to id. The WHERE
// clause makes the transition atomic; a second claimer matches zero
// rows and gets false.
func (s *Store) Claim(ctx context.Context, key claim.Key, channelID string, id platform.MessageID) (bool, error) {
	const q = `
		UPDATE projection_messages
		SET message_id = $4, channel_id = $5, updated_at = now()
		WHERE tenant_id = $1 AND feature = $2 AND resource_id = $3
		  AND message_id IS NULL`

	tag, err := s.pool.Exec(ctx, q, key.TenantID, key.Feature, key.ResourceID, string(id), channelID)
	if err != nil {
		return false, fmt.Errorf("projection: claim %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClearIf clears the message id only while it still equals expected.
func (s *Store) ClearIf(ctx context.Context, key claim.Key, expected platform.MessageID) error {
	const q = `
		UPDATE projection_messages
		SET message_id = NULL, pin_attempted_at = NULL, pinned_at = NULL, updated_at = now()
		WHERE tenant_id = $1 AND feature = $2 AND resource_id = $3
		  AND message_id = $4`

	if _, err := s.pool.Exec(ctx, q, key.TenantID, key.Feature, key.ResourceID, string(expected)); err != nil {
		return fmt.Errorf("projection: clear %s: %w", key, err)
	}
	return nil
}

// BeginPin marks the pin attempt and returns the message to pin.
// Returns ok=false when there is no claimed message or a pin was
// already attempted, so each message is pinned at most once.
func (s *Store) BeginPin(ctx context.Context, key claim.Key) (channelID string, id platform.MessageID, ok bool, err error) {
	const q = `
		UPDATE projection_messages
		SET pin_attempted_at = now()
		WHERE tenant_id = $1 AND feature = $2 AND resource_id = $3
		  AND message_id IS NOT NULL AND pin_attempted_at IS NULL
		RETURNING channel_id, message_id`

	var msgID string
	err = s.pool.QueryRow(ctx, q, key.TenantID, key.Feature, key.ResourceID).
		Scan(&channelID, &msgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", false, nil
		}
		return "", "", false, fmt.Errorf("projection: begin pin %s: %w", key, err)
	}
	return channelID, platform.MessageID(msgID), true, nil
}

// MarkPinned records a successful pin.
func (s *Store) MarkPinned(ctx context.Context, key claim.Key) error {
	const q = `
		UPDATE projection_messages
		SET pinned_at = now()
		WHERE tenant_id = $1 AND feature = $2 AND resource_id = $3`

	if _, err := s.pool.Exec(ctx, q, key.TenantID, key.Feature, key.ResourceID); err != nil {
		return fmt.Errorf("projection: mark pinned %s: %w", key, err)
	}
	return nil
}
