// Package netmon tracks backend reachability for the fieldsync engine.
//
// The monitor is advisory only: it exists to avoid doomed round-trips and
// to let the creation path pick remote-first vs local fabrication. Every
// remote attempt still handles failure itself, so a stale "online" reading
// is never a correctness problem, only a wasted request.
package netmon

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProbeFunc checks reachability, typically the backend health endpoint.
type ProbeFunc func(ctx context.Context) error

// Monitor holds the current reachability signal and notifies subscribers
// on transitions.
type Monitor struct {
	mu     sync.RWMutex
	online bool
	subs   []func(online bool)

	probe ProbeFunc
	log   *slog.Logger
}

// New creates a monitor. The probe may be nil, in which case only
// SetOnline drives the signal (e.g., fed by platform connectivity events).
func New(probe ProbeFunc, log *slog.Logger) *Monitor {
	return &Monitor{
		online: true, // assume reachable until proven otherwise
		probe:  probe,
		log:    log,
	}
}

// Online returns the current reachability signal.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline records a connectivity observation. Subscribers are notified
// synchronously on a transition, in subscription order.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	subs := m.subs
	m.mu.Unlock()

	if !changed {
		return
	}
	if m.log != nil {
		m.log.Info("connectivity changed", "online", online)
	}
	for _, fn := range subs {
		fn(online)
	}
}

// Subscribe registers a transition callback. Callbacks must be fast; they
// run on the goroutine that observed the transition.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Refresh runs the probe once and folds the result into the signal.
// Returns the resulting reading. With a nil probe it returns the current
// signal unchanged.
func (m *Monitor) Refresh(ctx context.Context) bool {
	if m.probe == nil {
		return m.Online()
	}
	err := m.probe(ctx)
	m.SetOnline(err == nil)
	return err == nil
}

// Run refreshes on an interval until the context is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}
