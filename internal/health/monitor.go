// Package health tracks whether the shiftsync server can actually be
// reached, as opposed to the device merely having a network interface up.
package health

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"
)

// Snapshot is the monitor's current view. IsOnline mirrors the device's
// interface signal; IsReachable means a recent probe got a 2xx from the
// server's health endpoint.
type Snapshot struct {
	IsOnline    bool
	IsReachable bool
}

// Monitor probes the server health endpoint in the background and publishes
// transitions. Callers read Snapshot; it never blocks on the network.
type Monitor struct {
	healthURL    string
	client       *http.Client
	interval     time.Duration
	probeTimeout time.Duration
	logger       *log.Logger

	mu        sync.Mutex
	online    bool
	reachable bool
	subs      map[chan Snapshot]struct{}

	probeNow chan struct{}
}

// Option configures the Monitor.
type Option func(*Monitor)

// WithInterval overrides the 30s probe interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithProbeTimeout overrides the 5s probe timeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Monitor) { m.probeTimeout = d }
}

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// NewMonitor constructs a Monitor probing healthURL. The device is assumed
// online until SetOnline says otherwise.
func NewMonitor(healthURL string, opts ...Option) *Monitor {
	m := &Monitor{
		healthURL:    healthURL,
		client:       &http.Client{},
		interval:     30 * time.Second,
		probeTimeout: 5 * time.Second,
		logger:       log.Default(),
		online:       true,
		subs:         make(map[chan Snapshot]struct{}),
		probeNow:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot returns the current view.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{IsOnline: m.online, IsReachable: m.reachable}
}

// Subscribe returns a channel receiving a Snapshot on every transition, and
// a cancel func.
func (m *Monitor) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 4)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		delete(m.subs, ch)
		m.mu.Unlock()
	}
	return ch, cancel
}

// SetOnline feeds the device's interface signal. Flipping to true schedules
// an immediate probe; flipping to false marks the server unreachable at once.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	changed := wasOnline != online
	if !online && m.reachable {
		m.reachable = false
		changed = true
	}
	snapshot := Snapshot{IsOnline: m.online, IsReachable: m.reachable}
	m.mu.Unlock()

	if changed {
		m.publish(snapshot)
	}
	if online && !wasOnline {
		select {
		case m.probeNow <- struct{}{}:
		default:
		}
	}
}

// Run drives the periodic probe loop until ctx is cancelled. It should be
// called in a goroutine.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		case <-m.probeNow:
			m.probe(ctx)
		}
	}
}

// CheckNow runs a single probe synchronously and returns the resulting view.
// One-shot commands use it instead of waiting for the background loop.
func (m *Monitor) CheckNow(ctx context.Context) Snapshot {
	m.probe(ctx)
	return m.Snapshot()
}

func (m *Monitor) probe(ctx context.Context) {
	if !m.Snapshot().IsOnline {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	reachable := false
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, m.healthURL, nil)
	if err != nil {
		m.logger.Printf("health: building probe request: %v", err)
	} else {
		resp, doErr := m.client.Do(req)
		if doErr == nil {
			resp.Body.Close()
			reachable = resp.StatusCode >= 200 && resp.StatusCode < 300
		}
	}

	m.mu.Lock()
	changed := m.reachable != reachable
	m.reachable = reachable
	snapshot := Snapshot{IsOnline: m.online, IsReachable: m.reachable}
	m.mu.Unlock()

	if changed {
		m.publish(snapshot)
	}
}

func (m *Monitor) publish(snapshot Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}
