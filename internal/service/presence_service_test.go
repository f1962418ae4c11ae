package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/campus-portal-api/internal/models"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
	"github.com/noah-isme/campus-portal-api/pkg/realtime"
)

type memoryPresenceRepo struct {
	mu      sync.Mutex
	rows    map[string]models.PresenceRecord
	failAll error
	upserts int
	cutoffs []time.Time
}

func newMemoryPresenceRepo() *memoryPresenceRepo {
	return &memoryPresenceRepo{rows: map[string]models.PresenceRecord{}}
}

func (r *memoryPresenceRepo) Upsert(ctx context.Context, record *models.PresenceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll != nil {
		return r.failAll
	}
	r.rows[record.SessionID] = *record
	r.upserts++
	return nil
}

func (r *memoryPresenceRepo) Delete(ctx context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll != nil {
		return false, r.failAll
	}
	_, ok := r.rows[sessionID]
	delete(r.rows, sessionID)
	return ok, nil
}

func (r *memoryPresenceRepo) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll != nil {
		return 0, r.failAll
	}
	r.cutoffs = append(r.cutoffs, cutoff)
	var n int64
	for id, row := range r.rows {
		if row.UpdatedAt.Before(cutoff) {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

func (r *memoryPresenceRepo) CountByPage(ctx context.Context, page string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll != nil {
		return 0, r.failAll
	}
	n := 0
	for _, row := range r.rows {
		if row.PageName == page {
			n++
		}
	}
	return n, nil
}

func (r *memoryPresenceRepo) CountGrouped(ctx context.Context) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll != nil {
		return nil, r.failAll
	}
	out := map[string]int{}
	for _, row := range r.rows {
		out[row.PageName]++
	}
	return out, nil
}

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

var presenceT0 = time.Date(2025, 9, 20, 10, 0, 0, 0, time.UTC)

func newTestPresenceService(repo presenceRepository, hub realtime.Hub, clock *manualClock) *PresenceService {
	return NewPresenceService(repo, hub, NewMetricsService(), nil, nil, PresenceConfig{StaleAfter: 30 * time.Second, CountedPage: models.PageStudent}).
		WithClock(clock.Now)
}

func TestPresenceCountedUntilStale(t *testing.T) {
	repo := newMemoryPresenceRepo()
	clock := &manualClock{t: presenceT0}
	svc := newTestPresenceService(repo, nil, clock)
	ctx := context.Background()

	require.NoError(t, svc.Heartbeat(ctx, HeartbeatRequest{SessionID: "sess-a", PageName: "student"}))

	clock.Set(presenceT0.Add(29 * time.Second))
	assert.Equal(t, 1, svc.Count(ctx, models.PageStudent))

	clock.Set(presenceT0.Add(31 * time.Second))
	assert.Equal(t, 0, svc.Count(ctx, models.PageStudent))
	assert.Empty(t, repo.rows)
}

func TestPresenceCountsOnlyFreshSessions(t *testing.T) {
	repo := newMemoryPresenceRepo()
	clock := &manualClock{t: presenceT0}
	svc := newTestPresenceService(repo, nil, clock)
	ctx := context.Background()
	now := presenceT0.Add(time.Minute)

	for id, age := range map[string]time.Duration{"fresh": 5 * time.Second, "stale": 35 * time.Second, "gone": 40 * time.Second} {
		clock.Set(now.Add(-age))
		require.NoError(t, svc.Heartbeat(ctx, HeartbeatRequest{SessionID: id, PageName: "student"}))
	}

	clock.Set(now)
	assert.Equal(t, 1, svc.Count(ctx, models.PageStudent))
	require.Len(t, repo.rows, 1)
	assert.Contains(t, repo.rows, "fresh")
}

func TestPresenceHeartbeatKeepsSessionAlive(t *testing.T) {
	repo := newMemoryPresenceRepo()
	clock := &manualClock{t: presenceT0}
	svc := newTestPresenceService(repo, nil, clock)
	ctx := context.Background()

	for _, at := range []time.Duration{0, 5 * time.Second, 35 * time.Second} {
		clock.Set(presenceT0.Add(at))
		require.NoError(t, svc.Heartbeat(ctx, HeartbeatRequest{SessionID: "sess-a", PageName: "student"}))
	}

	clock.Set(presenceT0.Add(40 * time.Second))
	assert.Equal(t, 1, svc.Count(ctx, ""))
	assert.Len(t, repo.rows, 1)
}

func TestPresenceOnlyCountsStudentPage(t *testing.T) {
	repo := newMemoryPresenceRepo()
	clock := &manualClock{t: presenceT0}
	svc := newTestPresenceService(repo, nil, clock)
	ctx := context.Background()

	require.NoError(t, svc.Heartbeat(ctx, HeartbeatRequest{SessionID: "s1", PageName: "student"}))
	require.NoError(t, svc.Heartbeat(ctx, HeartbeatRequest{SessionID: "s2", PageName: "STUDENT "}))
	require.NoError(t, svc.Heartbeat(ctx, HeartbeatRequest{SessionID: "a1", PageName: "admin"}))

	assert.Equal(t, 2, svc.Count(ctx, models.PageStudent))

	snap := svc.Snapshot(ctx)
	assert.Equal(t, 2, snap.Online)
	assert.Equal(t, map[string]int{"student": 2, "admin": 1}, snap.ByPage)
}

func TestPresenceSessionMovesBetweenPages(t *testing.T) {
	repo := newMemoryPresenceRepo()
	clock := &manualClock{t: presenceT0}
	svc := newTestPresenceService(repo, nil, clock)
	ctx := context.Background()

	require.NoError(t, svc.Heartbeat(ctx, HeartbeatRequest{SessionID: "s1", PageName: "student"}))
	require.NoError(t, svc.Heartbeat(ctx, HeartbeatRequest{SessionID: "s1", PageName: "admin"}))
	assert.Equal(t, 0, svc.Count(ctx, models.PageStudent))
	assert.Len(t, repo.rows, 1)
}

func TestPresenceLeaveRemovesRow(t *testing.T) {
	repo := newMemoryPresenceRepo()
	hub := realtime.NewMemoryHub()
	defer hub.Close()
	clock := &manualClock{t: presenceT0}
	svc := newTestPresenceService(repo, hub, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := hub.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.Heartbeat(ctx, HeartbeatRequest{SessionID: "s1", PageName: "student"}))
	svc.Leave(ctx, "s1")
	svc.Leave(ctx, "s1")

	assert.Equal(t, 0, svc.Count(ctx, models.PageStudent))
	first := <-events
	second := <-events
	assert.Equal(t, realtime.ActionUpsert, first.Action)
	assert.Equal(t, realtime.ActionDelete, second.Action)
	assert.Equal(t, "s1", second.Key)
	select {
	case extra := <-events:
		t.Fatalf("unexpected event %+v", extra)
	default:
	}
}

func TestPresenceStoreFailuresDegradeToZero(t *testing.T) {
	repo := newMemoryPresenceRepo()
	repo.failAll = errors.New("connection reset")
	core, logs := observer.New(zap.WarnLevel)
	clock := &manualClock{t: presenceT0}
	metrics := NewMetricsService()
	svc := NewPresenceService(repo, nil, metrics, nil, zap.New(core), PresenceConfig{}).WithClock(clock.Now)
	ctx := context.Background()

	assert.NoError(t, svc.Heartbeat(ctx, HeartbeatRequest{SessionID: "s1", PageName: "student"}))
	svc.Leave(ctx, "s1")
	assert.Equal(t, 0, svc.Count(ctx, models.PageStudent))
	snap := svc.Snapshot(ctx)
	assert.Equal(t, 0, snap.Online)

	assert.GreaterOrEqual(t, logs.Len(), 4)
	assert.Equal(t, uint64(1), metrics.Snapshot().HeartbeatFailures)
}

func TestPresenceHeartbeatValidation(t *testing.T) {
	svc := newTestPresenceService(newMemoryPresenceRepo(), nil, &manualClock{t: presenceT0})

	err := svc.Heartbeat(context.Background(), HeartbeatRequest{SessionID: "", PageName: "student"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	err = svc.Heartbeat(context.Background(), HeartbeatRequest{SessionID: "s1", PageName: "library"})
	assert.Error(t, err)
}

func TestPresencePruneUsesStaleWindow(t *testing.T) {
	repo := newMemoryPresenceRepo()
	clock := &manualClock{t: presenceT0}
	svc := newTestPresenceService(repo, nil, clock)

	svc.Prune(context.Background())
	require.Len(t, repo.cutoffs, 1)
	assert.Equal(t, presenceT0.Add(-30*time.Second), repo.cutoffs[0])
}
