package presence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-portal-api/pkg/realtime"
)

type counter interface {
	Count(ctx context.Context, page string) int
	CountedPage() string
}

// MonitorConfig tunes a Monitor.
type MonitorConfig struct {
	Interval time.Duration
	Logger   *zap.Logger
}

// Monitor recomputes the online count on a fixed poll and whenever the hub reports a
// presence change, and fans the latest value out to subscribers.
type Monitor struct {
	counter  counter
	hub      realtime.Hub
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	latest int
	subs   map[chan int]struct{}
}

// NewMonitor builds a monitor. hub may be nil, leaving only the poll.
func NewMonitor(c counter, hub realtime.Hub, cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{counter: c, hub: hub, interval: cfg.Interval, logger: logger, subs: make(map[chan int]struct{})}
}

// Run blocks until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	var events <-chan realtime.Event
	if m.hub != nil {
		ch, err := m.hub.Subscribe(ctx)
		if err != nil {
			m.logger.Warn("presence change feed unavailable, polling only", zap.Error(err))
		} else {
			events = ch
		}
	}

	m.Refresh(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Refresh(ctx)
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if evt.Topic == realtime.TopicPresence {
				m.Refresh(ctx)
			}
		}
	}
}

// Refresh recounts and notifies subscribers.
func (m *Monitor) Refresh(ctx context.Context) int {
	n := m.counter.Count(ctx, m.counter.CountedPage())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = n
	for ch := range m.subs {
		offer(ch, n)
	}
	return n
}

// Latest returns the last computed count.
func (m *Monitor) Latest() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}

// Subscribe returns a channel carrying the latest count, primed with the current value.
// Slow readers only ever see the newest value. Call the returned func to unsubscribe.
func (m *Monitor) Subscribe() (<-chan int, func()) {
	ch := make(chan int, 1)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	ch <- m.latest
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, ch)
			m.mu.Unlock()
		})
	}
}

func offer(ch chan int, n int) {
	select {
	case ch <- n:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- n:
	default:
	}
}
