package refresh_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astralis-bot/astralis/internal/jobs"
	"github.com/astralis-bot/astralis/internal/refresh"
	"github.com/astralis-bot/astralis/pkg/queue"
)

type recordedJob struct {
	name     string
	payload  any
	settings queue.Settings
}

type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []recordedJob
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, name string, payload any, opts ...queue.EnqueueOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, recordedJob{name: name, payload: payload, settings: queue.ResolveOptions(opts...)})
	return nil
}

func payloadFor(tenant, resource string) refresh.Payload {
	return refresh.Payload{
		Envelope: jobs.Envelope{
			CorrelationID: "corr-1",
			TenantID:      tenant,
			Feature:       "duels",
			Action:        "refresh",
		},
		ResourceID: resource,
	}
}

func TestRequest_SubmitsWithPolicy(t *testing.T) {
	t.Parallel()

	enq := &fakeEnqueuer{}
	svc := refresh.NewService(enq, nil)

	err := svc.Request(context.Background(), refresh.KindDuelScoreboard, payloadFor("g1", "round-7"))
	require.NoError(t, err)

	require.Len(t, enq.jobs, 1)
	job := enq.jobs[0]
	assert.Equal(t, refresh.JobDuelScoreboard, job.name)
	assert.Equal(t, "duel_scoreboard:g1:round-7", job.settings.CoalesceKey)
	assert.Equal(t, 10*time.Second, job.settings.CoalesceWindow)
	assert.Equal(t, 5, job.settings.MaxAttempts)
}

func TestRequest_SameResourceSharesCoalesceKey(t *testing.T) {
	t.Parallel()

	enq := &fakeEnqueuer{}
	svc := refresh.NewService(enq, nil)

	for range 5 {
		err := svc.Request(context.Background(), refresh.KindRaidStatus, payloadFor("g1", "raid-3"))
		require.NoError(t, err)
	}

	require.Len(t, enq.jobs, 5)
	first := enq.jobs[0].settings
	for _, job := range enq.jobs[1:] {
		// Identical key and window means the queue collapses these
		// submissions into a single queued job.
		assert.Equal(t, first.CoalesceKey, job.settings.CoalesceKey)
		assert.Equal(t, first.CoalesceWindow, job.settings.CoalesceWindow)
	}
}

func TestRequest_DistinctResourcesGetDistinctKeys(t *testing.T) {
	t.Parallel()

	enq := &fakeEnqueuer{}
	svc := refresh.NewService(enq, nil)

	require.NoError(t, svc.Request(context.Background(), refresh.KindPairDashboard, payloadFor("g1", "g1")))
	require.NoError(t, svc.Request(context.Background(), refresh.KindPairDashboard, payloadFor("g2", "g2")))

	require.Len(t, enq.jobs, 2)
	assert.NotEqual(t, enq.jobs[0].settings.CoalesceKey, enq.jobs[1].settings.CoalesceKey)
}

func TestRequest_UnknownKind(t *testing.T) {
	t.Parallel()

	enq := &fakeEnqueuer{}
	svc := refresh.NewService(enq, nil)

	err := svc.Request(context.Background(), refresh.Kind("nope"), payloadFor("g1", "r1"))
	require.ErrorIs(t, err, refresh.ErrUnknownKind)
	assert.Empty(t, enq.jobs)
}

func TestRequest_InvalidPayload(t *testing.T) {
	t.Parallel()

	enq := &fakeEnqueuer{}
	svc := refresh.NewService(enq, nil)

	p := payloadFor("g1", "r1")
	p.TenantID = ""
	err := svc.Request(context.Background(), refresh.KindDuelScoreboard, p)
	require.ErrorIs(t, err, jobs.ErrMissingTenantID)
	assert.Empty(t, enq.jobs)
}
