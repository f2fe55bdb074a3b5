// Package clock abstracts time for components that debounce, cool down,
// or wait, so tests can drive timers with a virtual clock instead of
// sleeping.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock provides the current time and one-shot timers.
type Clock interface {
	Now() time.Time
	// AfterFunc arms a one-shot timer that calls fn after d.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellable, re-armable one-shot timer.
type Timer interface {
	// Stop cancels the timer; it reports whether the timer was still armed.
	Stop() bool
	// Reset re-arms the timer for d from now; it reports whether the
	// timer was still armed before the reset.
	Reset(d time.Duration) bool
}

// System returns a Clock backed by the time package.
func System() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return systemTimer{time.AfterFunc(d, fn)}
}

type systemTimer struct {
	t *time.Timer
}

func (t systemTimer) Stop() bool { return t.t.Stop() }

func (t systemTimer) Reset(d time.Duration) bool { return t.t.Reset(d) }

// Fake is a manually advanced Clock for tests. Timers fire synchronously
// inside Advance, in deadline order.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

// NewFake returns a Fake clock starting at now.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{
		clock:    f,
		deadline: f.now.Add(d),
		fn:       fn,
		armed:    true,
	}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the clock forward by d, firing every timer whose deadline
// falls within the window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)

	for {
		var next *fakeTimer
		for _, t := range f.timers {
			if !t.armed || t.deadline.After(target) {
				continue
			}
			if next == nil || t.deadline.Before(next.deadline) {
				next = t
			}
		}
		if next == nil {
			break
		}
		if next.deadline.After(f.now) {
			f.now = next.deadline
		}
		next.armed = false
		fn := next.fn
		// Fire outside the lock so callbacks may arm new timers.
		f.mu.Unlock()
		fn()
		f.mu.Lock()
	}

	f.now = target
	f.compact()
	f.mu.Unlock()
}

// PendingTimers returns how many timers are currently armed.
func (f *Fake) PendingTimers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if t.armed {
			n++
		}
	}
	return n
}

func (f *Fake) compact() {
	kept := f.timers[:0]
	for _, t := range f.timers {
		if t.armed {
			kept = append(kept, t)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].deadline.Before(kept[j].deadline) })
	f.timers = kept
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	fn       func()
	armed    bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.armed
	t.armed = false
	return was
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.armed
	t.deadline = t.clock.now.Add(d)
	t.armed = true
	registered := false
	for _, existing := range t.clock.timers {
		if existing == t {
			registered = true
			break
		}
	}
	if !registered {
		t.clock.timers = append(t.clock.timers, t)
	}
	return was
}
