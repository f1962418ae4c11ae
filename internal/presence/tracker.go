package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State of a Tracker.
type State int

const (
	StateIdle State = iota
	StateTracking
)

func (s State) String() string {
	if s == StateTracking {
		return "tracking"
	}
	return "idle"
}

// TrackerConfig tunes a Tracker.
type TrackerConfig struct {
	Page         string
	Interval     time.Duration
	LeaveTimeout time.Duration
	Logger       *zap.Logger
}

// Tracker keeps one device session alive while a tracked page is open.
//
// Start moves Idle to Tracking: it resolves the session id, sends an immediate heartbeat
// and then one every Interval. Stop moves back to Idle and makes a best-effort attempt to
// delete the session row; if that fails the row expires through staleness instead.
type Tracker struct {
	identity IdentityStore
	beacon   Beacon
	cfg      TrackerConfig
	logger   *zap.Logger

	mu        sync.Mutex
	state     State
	sessionID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewTracker builds an idle tracker.
func NewTracker(identity IdentityStore, beacon Beacon, cfg TrackerConfig) *Tracker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.LeaveTimeout <= 0 {
		cfg.LeaveTimeout = 2 * time.Second
	}
	if cfg.Page == "" {
		cfg.Page = "student"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{identity: identity, beacon: beacon, cfg: cfg, logger: logger}
}

// State reports the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SessionID returns the id in use, empty before the first Start.
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// Start begins tracking. Calling Start while tracking is a no-op.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateTracking {
		return
	}
	if t.sessionID == "" {
		id, err := t.identity.SessionID()
		if err != nil {
			id = uuid.NewString()
			t.logger.Warn("session id not persisted, using ephemeral id", zap.Error(err))
		}
		t.sessionID = id
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.state = StateTracking

	t.beat(loopCtx)
	go t.loop(loopCtx, t.done)
}

// Stop ends tracking and removes the session row on a best-effort basis.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if t.state != StateTracking {
		t.mu.Unlock()
		return
	}
	cancel, done, id := t.cancel, t.done, t.sessionID
	t.state = StateIdle
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	cancel()
	<-done

	ctx, release := context.WithTimeout(context.Background(), t.cfg.LeaveTimeout)
	defer release()
	if err := t.beacon.Leave(ctx, id); err != nil {
		t.logger.Debug("presence leave failed", zap.String("session_id", id), zap.Error(err))
	}
}

func (t *Tracker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.beat(ctx)
		}
	}
}

func (t *Tracker) beat(ctx context.Context) {
	if err := t.beacon.Heartbeat(ctx, t.sessionID, t.cfg.Page); err != nil {
		t.logger.Warn("presence heartbeat failed", zap.String("session_id", t.sessionID), zap.Error(err))
	}
}
