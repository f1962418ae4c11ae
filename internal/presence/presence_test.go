package presence

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-portal-api/pkg/realtime"
)

type recordingBeacon struct {
	mu         sync.Mutex
	heartbeats []string
	leaves     []string
	leaveErr   error
}

func (b *recordingBeacon) Heartbeat(ctx context.Context, sessionID, page string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.heartbeats = append(b.heartbeats, sessionID+"@"+page)
	return nil
}

func (b *recordingBeacon) Leave(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaves = append(b.leaves, sessionID)
	return b.leaveErr
}

func (b *recordingBeacon) beats() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.heartbeats)
}

type brokenIdentity struct{}

func (brokenIdentity) SessionID() (string, error) { return "", errors.New("read-only fs") }

func TestFileIdentityStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session-id")

	first, err := NewFileIdentityStore(path).SessionID()
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := NewFileIdentityStore(path).SessionID()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileIdentityStoreRegeneratesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session-id")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))

	id, err := NewFileIdentityStore(path).SessionID()
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestTrackerLifecycle(t *testing.T) {
	beacon := &recordingBeacon{}
	identity := NewFileIdentityStore(filepath.Join(t.TempDir(), "id"))
	tracker := NewTracker(identity, beacon, TrackerConfig{Page: "student", Interval: 10 * time.Millisecond})
	assert.Equal(t, StateIdle, tracker.State())

	tracker.Start(context.Background())
	assert.Equal(t, StateTracking, tracker.State())
	assert.Equal(t, 1, beacon.beats(), "first heartbeat is sent immediately")

	require.Eventually(t, func() bool { return beacon.beats() >= 3 }, time.Second, 5*time.Millisecond)

	tracker.Start(context.Background())
	tracker.Stop()
	assert.Equal(t, StateIdle, tracker.State())
	assert.Equal(t, []string{tracker.SessionID()}, beacon.leaves)

	stopped := beacon.beats()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, beacon.beats())
}

func TestTrackerKeepsSessionAcrossRestarts(t *testing.T) {
	beacon := &recordingBeacon{}
	tracker := NewTracker(NewFileIdentityStore(filepath.Join(t.TempDir(), "id")), beacon, TrackerConfig{Interval: time.Hour})

	tracker.Start(context.Background())
	first := tracker.SessionID()
	tracker.Stop()
	tracker.Start(context.Background())
	tracker.Stop()

	assert.Equal(t, first, tracker.SessionID())
	assert.Equal(t, []string{first + "@student", first + "@student"}, beacon.heartbeats)
}

func TestTrackerSwallowsLeaveFailure(t *testing.T) {
	beacon := &recordingBeacon{leaveErr: errors.New("offline")}
	tracker := NewTracker(brokenIdentity{}, beacon, TrackerConfig{Interval: time.Hour})

	tracker.Start(context.Background())
	require.NotEmpty(t, tracker.SessionID())
	tracker.Stop()

	assert.Equal(t, StateIdle, tracker.State())
	assert.Len(t, beacon.leaves, 1)
}

type fakeCounter struct {
	mu    sync.Mutex
	value int
	calls int
}

func (c *fakeCounter) Count(ctx context.Context, page string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.value
}

func (c *fakeCounter) CountedPage() string { return "student" }

func (c *fakeCounter) set(n int) {
	c.mu.Lock()
	c.value = n
	c.mu.Unlock()
}

func (c *fakeCounter) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestMonitorRefreshNotifiesSubscribers(t *testing.T) {
	counter := &fakeCounter{value: 3}
	monitor := NewMonitor(counter, nil, MonitorConfig{Interval: time.Hour})

	updates, cancel := monitor.Subscribe()
	defer cancel()
	assert.Equal(t, 0, <-updates)

	counter.set(4)
	monitor.Refresh(context.Background())
	counter.set(5)
	monitor.Refresh(context.Background())

	assert.Equal(t, 5, <-updates, "slow subscribers only see the newest count")
	assert.Equal(t, 5, monitor.Latest())
}

func TestMonitorRecountsOnPresenceEvents(t *testing.T) {
	hub := realtime.NewMemoryHub()
	defer hub.Close()
	counter := &fakeCounter{value: 1}
	monitor := NewMonitor(counter, hub, MonitorConfig{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Run(ctx)
	require.Eventually(t, func() bool { return counter.callCount() == 1 }, time.Second, 5*time.Millisecond)

	counter.set(7)
	require.NoError(t, hub.Publish(ctx, realtime.Event{Topic: realtime.TopicNotices, Action: realtime.ActionUpsert}))
	require.NoError(t, hub.Publish(ctx, realtime.Event{Topic: realtime.TopicPresence, Action: realtime.ActionUpsert, Key: "s1"}))

	require.Eventually(t, func() bool { return monitor.Latest() == 7 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, counter.callCount())
}

func TestMonitorPollsWithoutHub(t *testing.T) {
	counter := &fakeCounter{value: 2}
	monitor := NewMonitor(counter, nil, MonitorConfig{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Run(ctx)

	require.Eventually(t, func() bool { return counter.callCount() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, monitor.Latest())
}
