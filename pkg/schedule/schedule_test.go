package schedule_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astralis-bot/astralis/pkg/schedule"
)

func TestValidateCron(t *testing.T) {
	t.Parallel()

	valid := []string{
		"* * * * *",
		"0 9 * * 1",
		"*/15 * * * *",
		"30 6 1 * *",
		"0 0 1-7 * 0",
		"0 8-18/2 * * MON-FRI",
	}
	for _, expr := range valid {
		t.Run(expr, func(t *testing.T) {
			t.Parallel()
			assert.NoError(t, schedule.ValidateCron(expr))
		})
	}

	invalid := []string{
		"",
		"* * * *",
		"* * * * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 32 * *",
		"* * * 13 *",
		"not a cron",
	}
	for _, expr := range invalid {
		t.Run("invalid/"+expr, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, schedule.ValidateCron(expr), schedule.ErrInvalidCron)
		})
	}
}

func TestParseDefinitions(t *testing.T) {
	t.Parallel()

	t.Run("valid document", func(t *testing.T) {
		t.Parallel()

		defs, err := schedule.ParseDefinitions([]byte(`
schedules:
  - name: "horoscope:weekly_tick"
    cron: "0 9 * * 1"
    payload:
      feature: horoscope
  - name: "leaderboard:monthly_tick"
    cron: "0 10 1 * *"
`))
		require.NoError(t, err)
		require.Len(t, defs, 2)
		assert.Equal(t, "horoscope:weekly_tick", defs[0].Name)
		assert.Equal(t, "0 9 * * 1", defs[0].Cron)
		assert.Equal(t, "horoscope", defs[0].Payload["feature"])
	})

	t.Run("duplicate names rejected", func(t *testing.T) {
		t.Parallel()

		_, err := schedule.ParseDefinitions([]byte(`
schedules:
  - name: "tick"
    cron: "* * * * *"
  - name: "tick"
    cron: "0 * * * *"
`))
		assert.ErrorIs(t, err, schedule.ErrDuplicateName)
	})

	t.Run("bad cron rejected", func(t *testing.T) {
		t.Parallel()

		_, err := schedule.ParseDefinitions([]byte(`
schedules:
  - name: "tick"
    cron: "99 * * * *"
`))
		assert.ErrorIs(t, err, schedule.ErrInvalidCron)
	})
}

// memStore is an in-memory schedule.Store.
type memStore struct {
	mu    sync.Mutex
	flags map[string]bool
}

func newMemStore() *memStore {
	return &memStore{flags: make(map[string]bool)}
}

func (s *memStore) Enabled(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enabled, ok := s.flags[name]
	if !ok {
		return true, nil
	}
	return enabled, nil
}

func (s *memStore) SetEnabled(_ context.Context, name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[name] = enabled
	return nil
}

// fakeRecurring records schedule/unschedule calls.
type fakeRecurring struct {
	mu        sync.Mutex
	active    map[string]string // name -> cron
	scheduled []string
	removed   []string
}

func newFakeRecurring() *fakeRecurring {
	return &fakeRecurring{active: make(map[string]string)}
}

func (f *fakeRecurring) ScheduleRecurring(name, cronExpr string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[name] = cronExpr
	f.scheduled = append(f.scheduled, name)
	return nil
}

func (f *fakeRecurring) UnscheduleRecurring(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, name)
	f.removed = append(f.removed, name)
}

func testDefs() []schedule.Definition {
	return []schedule.Definition{
		{Name: "horoscope:weekly_tick", Cron: "0 9 * * 1"},
		{Name: "leaderboard:monthly_tick", Cron: "0 10 1 * *"},
	}
}

func TestRegistry_ReconcileOnBoot(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	rec := newFakeRecurring()
	reg, err := schedule.NewRegistry(testDefs(), store, rec, nil)
	require.NoError(t, err)

	require.NoError(t, reg.Reconcile(context.Background()))

	assert.Equal(t, "0 9 * * 1", rec.active["horoscope:weekly_tick"])
	assert.Equal(t, "0 10 1 * *", rec.active["leaderboard:monthly_tick"])
}

func TestRegistry_ToggleLifecycle(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	rec := newFakeRecurring()
	reg, err := schedule.NewRegistry(testDefs(), store, rec, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, reg.Reconcile(ctx))

	// Disable removes the registration.
	require.NoError(t, reg.SetEnabled(ctx, "horoscope:weekly_tick", false))
	_, stillActive := rec.active["horoscope:weekly_tick"]
	assert.False(t, stillActive)
	assert.Contains(t, rec.removed, "horoscope:weekly_tick")

	// Re-enable re-registers with the original cron string.
	require.NoError(t, reg.SetEnabled(ctx, "horoscope:weekly_tick", true))
	assert.Equal(t, "0 9 * * 1", rec.active["horoscope:weekly_tick"])
}

func TestRegistry_DisabledScheduleSkippedOnBoot(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	require.NoError(t, store.SetEnabled(context.Background(), "horoscope:weekly_tick", false))

	rec := newFakeRecurring()
	reg, err := schedule.NewRegistry(testDefs(), store, rec, nil)
	require.NoError(t, err)

	require.NoError(t, reg.Reconcile(context.Background()))

	_, active := rec.active["horoscope:weekly_tick"]
	assert.False(t, active)
	assert.Equal(t, "0 10 1 * *", rec.active["leaderboard:monthly_tick"])
}

func TestRegistry_UnknownName(t *testing.T) {
	t.Parallel()

	reg, err := schedule.NewRegistry(testDefs(), newMemStore(), newFakeRecurring(), nil)
	require.NoError(t, err)

	err = reg.SetEnabled(context.Background(), "nope", true)
	assert.ErrorIs(t, err, schedule.ErrUnknownSchedule)
}

func TestRegistry_Statuses(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	require.NoError(t, store.SetEnabled(context.Background(), "leaderboard:monthly_tick", false))

	reg, err := schedule.NewRegistry(testDefs(), store, newFakeRecurring(), nil)
	require.NoError(t, err)

	statuses, err := reg.Statuses(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, schedule.Status{Name: "horoscope:weekly_tick", Cron: "0 9 * * 1", Enabled: true}, statuses[0])
	assert.Equal(t, schedule.Status{Name: "leaderboard:monthly_tick", Cron: "0 10 1 * *", Enabled: false}, statuses[1])
}
