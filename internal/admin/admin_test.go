package admin_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astralis-bot/astralis/internal/admin"
	"github.com/astralis-bot/astralis/internal/tenant"
	"github.com/astralis-bot/astralis/pkg/cache"
	"github.com/astralis-bot/astralis/pkg/health"
	"github.com/astralis-bot/astralis/pkg/schedule"
)

type memScheduleStore struct {
	mu    sync.Mutex
	flags map[string]bool
}

func (s *memScheduleStore) Enabled(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.flags[name]; ok {
		return v, nil
	}
	return true, nil
}

func (s *memScheduleStore) SetEnabled(_ context.Context, name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[name] = enabled
	return nil
}

type fakeRecurring struct {
	mu         sync.Mutex
	registered map[string]string
}

func (f *fakeRecurring) ScheduleRecurring(name, cronExpr string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered[name] = cronExpr
	return nil
}

func (f *fakeRecurring) UnscheduleRecurring(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.registered, name)
}

func newTestServer(t *testing.T) (*admin.Server, *fakeRecurring) {
	t.Helper()

	defs := []schedule.Definition{
		{Name: "horoscope:weekly_tick", Cron: "0 9 * * 1"},
	}
	rec := &fakeRecurring{registered: make(map[string]string)}
	reg, err := schedule.NewRegistry(defs, &memScheduleStore{flags: make(map[string]bool)}, rec, nil)
	require.NoError(t, err)
	require.NoError(t, reg.Reconcile(context.Background()))

	mem := cache.NewMemory[tenant.Settings]()
	t.Cleanup(func() { _ = mem.Close() })
	require.NoError(t, mem.Set(context.Background(), "tenant:settings:g1",
		tenant.Settings{GuildID: "g1", Locale: "en", DuelsChannelID: "chan-d"}, -1))
	tenants := tenant.NewService(nil, mem)

	checks := health.Checks{
		"postgres": func(context.Context) error { return nil },
	}
	return admin.NewServer(reg, tenants, checks, nil), rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "postgres")
}

func TestHealthz_FailingProbe(t *testing.T) {
	t.Parallel()

	reg, err := schedule.NewRegistry(nil, &memScheduleStore{flags: make(map[string]bool)},
		&fakeRecurring{registered: make(map[string]string)}, nil)
	require.NoError(t, err)

	checks := health.Checks{
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	}
	srv := admin.NewServer(reg, tenant.NewService(nil, cache.NewMemory[tenant.Settings]()), checks, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestScheduleToggle(t *testing.T) {
	t.Parallel()

	srv, recurring := newTestServer(t)
	router := srv.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/schedules/horoscope:weekly_tick/disable", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, recurring.registered)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/schedules/horoscope:weekly_tick/enable", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0 9 * * 1", recurring.registered["horoscope:weekly_tick"])
}

func TestScheduleToggle_Unknown(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/schedules/nope/disable", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSchedules(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schedules", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "horoscope:weekly_tick")
	assert.Contains(t, rec.Body.String(), "0 9 * * 1")
}

func TestGetSettings(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/guilds/g1/settings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chan-d")
}

func TestPutSettings_MalformedBody(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/guilds/g1/settings", strings.NewReader("{nope")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestIDEchoed(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}
