package id_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astralis-bot/astralis/pkg/id"
)

func TestNewCorrelationID(t *testing.T) {
	t.Parallel()

	t.Run("length and alphabet", func(t *testing.T) {
		t.Parallel()

		got := id.NewCorrelationID()
		require.Len(t, got, 26)
		for _, r := range got {
			assert.True(t, strings.ContainsRune("0123456789ABCDEFGHJKMNPQRSTVWXYZ", r),
				"unexpected character %q", r)
		}
	})

	t.Run("unique", func(t *testing.T) {
		t.Parallel()

		seen := make(map[string]struct{}, 1000)
		for range 1000 {
			got := id.NewCorrelationID()
			_, dup := seen[got]
			require.False(t, dup, "duplicate id %s", got)
			seen[got] = struct{}{}
		}
	})

	t.Run("sortable by creation time", func(t *testing.T) {
		t.Parallel()

		first := id.NewCorrelationID()
		time.Sleep(2 * time.Millisecond)
		second := id.NewCorrelationID()
		assert.Less(t, first, second)
	})
}
