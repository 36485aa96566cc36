package projection_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astralis-bot/astralis/internal/projection"
	"github.com/astralis-bot/astralis/pkg/claim"
	"github.com/astralis-bot/astralis/pkg/platform"
	"github.com/astralis-bot/astralis/pkg/throttle"
)

type memStore struct {
	mu   sync.Mutex
	recs map[claim.Key]claim.Record
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[claim.Key]claim.Record)}
}

func (s *memStore) Current(_ context.Context, key claim.Key) (claim.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recs[key], nil
}

func (s *memStore) Claim(_ context.Context, key claim.Key, channelID string, id platform.MessageID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recs[key].MessageID != "" {
		return false, nil
	}
	s.recs[key] = claim.Record{ChannelID: channelID, MessageID: id}
	return true, nil
}

func (s *memStore) ClearIf(_ context.Context, key claim.Key, expected platform.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recs[key].MessageID == expected {
		s.recs[key] = claim.Record{ChannelID: s.recs[key].ChannelID}
	}
	return nil
}

type fakeAPI struct {
	mu      sync.Mutex
	nextID  int
	edits   map[platform.MessageID]platform.Content
	pins    []platform.MessageID
	pinErr  error
	created []platform.MessageID
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{edits: make(map[platform.MessageID]platform.Content)}
}

func (f *fakeAPI) CreateMessage(_ context.Context, _ string, content platform.Content) (platform.MessageID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := platform.MessageID(fmt.Sprintf("m-%d", f.nextID))
	f.edits[id] = content
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeAPI) EditMessage(_ context.Context, _ string, id platform.MessageID, content platform.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits[id] = content
	return nil
}

func (f *fakeAPI) DeleteMessage(_ context.Context, _ string, id platform.MessageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.edits, id)
	return nil
}

func (f *fakeAPI) PinMessage(_ context.Context, _ string, id platform.MessageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pinErr != nil {
		return f.pinErr
	}
	f.pins = append(f.pins, id)
	return nil
}

type memPinStore struct {
	mu        sync.Mutex
	store     *memStore
	attempted map[claim.Key]bool
	pinned    map[claim.Key]bool
}

func newMemPinStore(store *memStore) *memPinStore {
	return &memPinStore{store: store, attempted: make(map[claim.Key]bool), pinned: make(map[claim.Key]bool)}
}

func (p *memPinStore) BeginPin(ctx context.Context, key claim.Key) (string, platform.MessageID, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, _ := p.store.Current(ctx, key)
	if rec.MessageID == "" || p.attempted[key] {
		return "", "", false, nil
	}
	p.attempted[key] = true
	return rec.ChannelID, rec.MessageID, true, nil
}

func (p *memPinStore) MarkPinned(_ context.Context, key claim.Key) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pinned[key] = true
	return nil
}

type dashState struct {
	Title string
	Rows  int
}

func newProjection(t *testing.T, store *memStore, api *fakeAPI, pins *memPinStore, channelID string, opts ...projection.ProjectionOption) *projection.Projection[dashState] {
	t.Helper()

	refresher := claim.New(store, api, claim.WithThrottle(throttle.WithInterval(time.Millisecond)))
	t.Cleanup(refresher.Close)

	load := func(_ context.Context, tenantID, resourceID string) (dashState, error) {
		return dashState{Title: tenantID + "/" + resourceID, Rows: 3}, nil
	}
	render := func(s dashState) platform.Content {
		return platform.Content{Body: fmt.Sprintf("%s (%d rows)", s.Title, s.Rows)}
	}
	channel := func(_ context.Context, _ string) (string, error) {
		return channelID, nil
	}
	return projection.New("duels", pins, refresher, api, load, render, channel, opts...)
}

func TestRefresh_CreatesAndRerenders(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	api := newFakeAPI()
	proj := newProjection(t, store, api, newMemPinStore(store), "chan-1")

	require.NoError(t, proj.Refresh(context.Background(), "g1", "round-1"))
	require.Len(t, api.created, 1)

	// A second refresh edits the same message instead of creating one.
	require.NoError(t, proj.Refresh(context.Background(), "g1", "round-1"))
	assert.Len(t, api.created, 1)
	assert.Equal(t, "g1/round-1 (3 rows)", api.edits[api.created[0]].Body)
}

func TestRefresh_SkipsUnconfiguredChannel(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	api := newFakeAPI()
	proj := newProjection(t, store, api, newMemPinStore(store), "")

	require.NoError(t, proj.Refresh(context.Background(), "g1", "round-1"))
	assert.Empty(t, api.created)
}

func TestRefresh_PinsOnceAfterCreate(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	api := newFakeAPI()
	pins := newMemPinStore(store)
	proj := newProjection(t, store, api, pins, "chan-1", projection.WithPin())

	require.NoError(t, proj.Refresh(context.Background(), "g1", "g1"))
	require.NoError(t, proj.Refresh(context.Background(), "g1", "g1"))

	require.Len(t, api.pins, 1)
	assert.True(t, pins.pinned[claim.Key{TenantID: "g1", Feature: "duels", ResourceID: "g1"}])
}

func TestRefresh_PinFailureDoesNotFailRefresh(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	api := newFakeAPI()
	api.pinErr = fmt.Errorf("missing permission")
	pins := newMemPinStore(store)
	proj := newProjection(t, store, api, pins, "chan-1", projection.WithPin())

	require.NoError(t, proj.Refresh(context.Background(), "g1", "g1"))
	assert.Empty(t, api.pins)
}
