package claim_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astralis-bot/astralis/pkg/claim"
	"github.com/astralis-bot/astralis/pkg/platform"
	"github.com/astralis-bot/astralis/pkg/retry"
	"github.com/astralis-bot/astralis/pkg/throttle"
)

// memStore is an in-memory claim.Store with the same conditional-write
// semantics as the Postgres implementation.
type memStore struct {
	mu   sync.Mutex
	rows map[claim.Key]claim.Record
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[claim.Key]claim.Record)}
}

func (s *memStore) Current(_ context.Context, key claim.Key) (claim.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[key], nil
}

func (s *memStore) Claim(_ context.Context, key claim.Key, channelID string, id platform.MessageID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows[key].MessageID != "" {
		return false, nil
	}
	s.rows[key] = claim.Record{ChannelID: channelID, MessageID: id}
	return true, nil
}

func (s *memStore) ClearIf(_ context.Context, key claim.Key, expected platform.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows[key].MessageID == expected {
		s.rows[key] = claim.Record{}
	}
	return nil
}

// fakeAPI is a scriptable platform.Client that records every call.
type fakeAPI struct {
	mu       sync.Mutex
	nextID   int
	created  []platform.MessageID
	edited   map[platform.MessageID][]platform.Content
	deleted  []platform.MessageID
	missing  map[platform.MessageID]bool
	editFail error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		edited:  make(map[platform.MessageID][]platform.Content),
		missing: make(map[platform.MessageID]bool),
	}
}

func (f *fakeAPI) CreateMessage(context.Context, string, platform.Content) (platform.MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := platform.MessageID(fmt.Sprintf("m%d", f.nextID))
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeAPI) EditMessage(_ context.Context, _ string, id platform.MessageID, content platform.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[id] {
		return &platform.APIError{Status: 404, Message: "unknown message"}
	}
	if f.editFail != nil {
		return f.editFail
	}
	f.edited[id] = append(f.edited[id], content)
	return nil
}

func (f *fakeAPI) DeleteMessage(_ context.Context, _ string, id platform.MessageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAPI) PinMessage(context.Context, string, platform.MessageID) error {
	return nil
}

func newRefresher(t *testing.T, store claim.Store, api platform.Client) *claim.Refresher {
	t.Helper()
	r := claim.New(store, api,
		claim.WithInvoker(retry.New(
			retry.WithMaxAttempts(2),
			retry.WithBaseDelay(time.Millisecond),
			retry.WithMaxDelay(2*time.Millisecond),
		)),
		claim.WithThrottle(throttle.WithInterval(time.Millisecond)),
	)
	t.Cleanup(r.Close)
	return r
}

func testKey() claim.Key {
	return claim.Key{TenantID: "guild-1", Feature: "duel_scoreboard", ResourceID: "round-7"}
}

func TestRefresh_CreatesAndClaims(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	api := newFakeAPI()
	r := newRefresher(t, store, api)

	outcome, err := r.Refresh(context.Background(), testKey(), "chan-1", platform.Content{Body: "v1"})
	require.NoError(t, err)
	assert.Equal(t, claim.OutcomeCreated, outcome)

	rec, _ := store.Current(context.Background(), testKey())
	assert.Equal(t, platform.MessageID("m1"), rec.MessageID)
	assert.Equal(t, "chan-1", rec.ChannelID)
}

func TestRefresh_EditsExistingMessage(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	api := newFakeAPI()
	r := newRefresher(t, store, api)
	ctx := context.Background()

	_, err := r.Refresh(ctx, testKey(), "chan-1", platform.Content{Body: "v1"})
	require.NoError(t, err)

	outcome, err := r.Refresh(ctx, testKey(), "chan-1", platform.Content{Body: "v2"})
	require.NoError(t, err)
	assert.Equal(t, claim.OutcomeUpdated, outcome)

	assert.Len(t, api.created, 1, "second refresh must not create a message")
	require.Len(t, api.edited["m1"], 1)
	assert.Equal(t, "v2", api.edited["m1"][0].Body)
}

func TestRefresh_RecreatesAfterExternalDeletion(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	api := newFakeAPI()
	r := newRefresher(t, store, api)
	ctx := context.Background()

	_, err := r.Refresh(ctx, testKey(), "chan-1", platform.Content{Body: "v1"})
	require.NoError(t, err)

	// Someone deletes the message on the platform.
	api.missing["m1"] = true

	outcome, err := r.Refresh(ctx, testKey(), "chan-1", platform.Content{Body: "v2"})
	require.NoError(t, err)
	assert.Equal(t, claim.OutcomeCreated, outcome)

	rec, _ := store.Current(ctx, testKey())
	assert.Equal(t, platform.MessageID("m2"), rec.MessageID)
}

func TestRefresh_LostRaceReconciles(t *testing.T) {
	t.Parallel()

	// A competing worker claims "race-winner" between this worker's
	// create and its claim attempt.
	store := newMemStore()
	rs := &raceStore{memStore: store, key: testKey(), winnerChannel: "chan-1"}
	api := newFakeAPI()
	r := newRefresher(t, rs, api)
	ctx := context.Background()

	outcome, err := r.Refresh(ctx, testKey(), "chan-1", platform.Content{Body: "ours"})
	require.NoError(t, err)
	assert.Equal(t, claim.OutcomeReconciled, outcome)

	// The winner keeps ownership but shows this worker's content, and
	// the duplicate message is gone.
	rec, _ := store.Current(ctx, testKey())
	assert.Equal(t, platform.MessageID("race-winner"), rec.MessageID)
	require.Len(t, api.edited["race-winner"], 1)
	assert.Equal(t, "ours", api.edited["race-winner"][0].Body)
	assert.Equal(t, []platform.MessageID{"m1"}, api.deleted)
}

func TestRefresh_ConcurrentWorkersSettleOnOneMessage(t *testing.T) {
	t.Parallel()

	const workers = 8

	store := newMemStore()
	api := newFakeAPI()
	ctx := context.Background()

	refreshers := make([]*claim.Refresher, workers)
	for i := range refreshers {
		refreshers[i] = newRefresher(t, store, api)
	}

	var wg sync.WaitGroup
	outcomes := make([]claim.Outcome, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := refreshers[i].Refresh(ctx, testKey(), "chan-1",
				platform.Content{Body: fmt.Sprintf("worker-%d", i)})
			assert.NoError(t, err)
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	rec, _ := store.Current(ctx, testKey())
	require.NotEmpty(t, rec.MessageID, "exactly one claim must have settled")

	created := 0
	for _, o := range outcomes {
		if o == claim.OutcomeCreated {
			created++
		}
	}
	assert.Equal(t, 1, created, "exactly one worker may win the claim")

	// Every message that is not the winner was either deleted or never
	// recorded; the winner is never deleted.
	for _, d := range api.deleted {
		assert.NotEqual(t, rec.MessageID, d, "winner must not be deleted")
	}
	for _, c := range api.created {
		if c == rec.MessageID {
			continue
		}
		assert.Contains(t, api.deleted, c, "losing duplicate %s must be deleted", c)
	}
}

func TestRefresh_TwoWorkerScenario(t *testing.T) {
	t.Parallel()

	// Worker A and worker B both observe the resource without a message
	// and both create one; A's claim commits first. B must re-read A's
	// id, edit A's message with B's rendered content, and delete its own
	// duplicate.
	store := newMemStore()
	api := newFakeAPI()
	ctx := context.Background()
	key := testKey()

	// B created m-b before losing; the raceStore commits A's claim of
	// m-a the instant B tries to claim.
	rs := &raceStore{memStore: store, key: key, winnerChannel: "chan-1", winnerID: "m-a"}
	b := newRefresher(t, rs, api)

	outcomeB, err := b.Refresh(ctx, key, "chan-1", platform.Content{Body: "from B"})
	require.NoError(t, err)
	assert.Equal(t, claim.OutcomeReconciled, outcomeB)

	final, _ := store.Current(ctx, key)
	assert.Equal(t, platform.MessageID("m-a"), final.MessageID)
	require.NotEmpty(t, api.edited["m-a"], "B's content must land on the winning message")
	assert.Equal(t, "from B", api.edited["m-a"][len(api.edited["m-a"])-1].Body)
	assert.Equal(t, []platform.MessageID{"m1"}, api.deleted, "B's duplicate must be deleted")
}

// raceStore lets a competing claim slip in between a worker's create
// and its first Claim call.
type raceStore struct {
	*memStore
	key           claim.Key
	winnerChannel string
	winnerID      platform.MessageID
	once          sync.Once
}

func (s *raceStore) Claim(ctx context.Context, key claim.Key, channelID string, id platform.MessageID) (bool, error) {
	s.once.Do(func() {
		winner := s.winnerID
		if winner == "" {
			winner = "race-winner"
		}
		_, _ = s.memStore.Claim(ctx, s.key, s.winnerChannel, winner)
	})
	return s.memStore.Claim(ctx, key, channelID, id)
}
