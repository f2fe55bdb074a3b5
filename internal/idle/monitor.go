// Package idle watches for sustained user inactivity.
package idle

import (
	"sync"
	"time"

	"github.com/notesmith/notesmith/internal/clock"
)

// Monitor fires a callback once a quiet period elapses without any
// activity. It fires at most once per quiet period: after firing it
// stays dormant until the next Touch re-arms it.
type Monitor struct {
	mu      sync.Mutex
	clock   clock.Clock
	quiet   time.Duration
	onIdle  func()
	timer   clock.Timer
	stopped bool
}

// NewMonitor creates a monitor; Start arms it.
func NewMonitor(clk clock.Clock, quiet time.Duration, onIdle func()) *Monitor {
	return &Monitor{
		clock:  clk,
		quiet:  quiet,
		onIdle: onIdle,
	}
}

// Start arms the quiet-period timer.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || m.timer != nil {
		return
	}
	m.timer = m.clock.AfterFunc(m.quiet, m.fire)
}

// Touch records a qualifying activity signal and restarts the quiet
// period.
func (m *Monitor) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if m.timer == nil {
		m.timer = m.clock.AfterFunc(m.quiet, m.fire)
		return
	}
	m.timer.Reset(m.quiet)
}

// Stop cancels the pending timer; the monitor will not fire again.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Monitor) fire() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	// Dormant until the next Touch.
	m.timer = nil
	onIdle := m.onIdle
	m.mu.Unlock()

	onIdle()
}
