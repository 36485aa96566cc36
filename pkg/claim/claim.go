package claim

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/astralis-bot/astralis/pkg/platform"
)

// Key identifies a logical external resource: one weekly post per
// guild, one dashboard per pair, one scoreboard per duel round.
type Key struct {
	TenantID   string
	Feature    string
	ResourceID string
}

func (k Key) String() string {
	return k.Feature + ":" + k.TenantID + ":" + k.ResourceID
}

// Record is the stored message sighting for a Key. MessageID is empty
// while no message has been claimed.
type Record struct {
	ChannelID string
	MessageID platform.MessageID
}

// Store persists message ownership. All methods must be safe under
// concurrent workers; Claim and ClearIf must be atomic conditional
// writes (UPDATE ... WHERE message_id IS NULL / = expected).
type Store interface {
	// Current returns the live record for key, creating an empty row if
	// none exists yet.
	Current(ctx context.Context, key Key) (Record, error)

	// Claim transitions the key's message id from empty to id. Returns
	// false without writing when another worker claimed first.
	Claim(ctx context.Context, key Key, channelID string, id platform.MessageID) (bool, error)

	// ClearIf clears the key's message id only while it still equals
	// expected, so a concurrent claimer is never clobbered.
	ClearIf(ctx context.Context, key Key, expected platform.MessageID) error
}

// ErrStaleClaim marks a lost ownership race. It is recovered internally
// by reconciliation and never escapes Refresh.
var ErrStaleClaim = errors.New("claim: lost message ownership race")

// ErrUnsettled is returned when repeated claim attempts kept finding
// the ownership row in motion. In practice this needs a concurrent
// clear between every attempt, which a real deployment does not do.
var ErrUnsettled = errors.New("claim: ownership did not settle")

// EditKey builds the serializer target key for a message.
func EditKey(channelID string, id platform.MessageID) string {
	return channelID + ":" + string(id)
}

// SplitEditKey is the inverse of EditKey.
func SplitEditKey(key string) (channelID string, id platform.MessageID, err error) {
	channel, msg, ok := strings.Cut(key, ":")
	if !ok || channel == "" || msg == "" {
		return "", "", fmt.Errorf("claim: malformed edit key %q", key)
	}
	return channel, platform.MessageID(msg), nil
}
