package pglock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockKey_Deterministic(t *testing.T) {
	t.Parallel()

	assert.Equal(t, lockKey("guild-42"), lockKey("guild-42"))
	assert.NotEqual(t, lockKey("guild-42"), lockKey("guild-43"))
	assert.NotEqual(t, lockKey("duel_round"), lockKey("raid"))
}
