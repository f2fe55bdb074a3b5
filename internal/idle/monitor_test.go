package idle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/notesmith/notesmith/internal/clock"
)

func TestMonitor_firesAfterQuietPeriod(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	fired := 0
	m := NewMonitor(fake, 30*time.Second, func() { fired++ })
	m.Start()

	fake.Advance(29 * time.Second)
	assert.Equal(t, 0, fired)

	fake.Advance(time.Second)
	assert.Equal(t, 1, fired)

	// Staying idle does not fire again until activity re-arms it.
	fake.Advance(5 * time.Minute)
	assert.Equal(t, 1, fired)
}

func TestMonitor_activityResetsQuietPeriod(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	fired := 0
	m := NewMonitor(fake, 30*time.Second, func() { fired++ })
	m.Start()

	for i := 0; i < 5; i++ {
		fake.Advance(20 * time.Second)
		m.Touch()
	}
	assert.Equal(t, 0, fired, "continuous activity keeps the monitor from firing")

	fake.Advance(30 * time.Second)
	assert.Equal(t, 1, fired)
}

func TestMonitor_touchAfterFireReArms(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	fired := 0
	m := NewMonitor(fake, 30*time.Second, func() { fired++ })
	m.Start()

	fake.Advance(30 * time.Second)
	assert.Equal(t, 1, fired)

	m.Touch()
	fake.Advance(30 * time.Second)
	assert.Equal(t, 2, fired)
}

func TestMonitor_stopCancelsPendingFire(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	fired := 0
	m := NewMonitor(fake, 30*time.Second, func() { fired++ })
	m.Start()
	m.Stop()

	fake.Advance(time.Minute)
	assert.Equal(t, 0, fired)

	m.Touch()
	fake.Advance(time.Minute)
	assert.Equal(t, 0, fired, "a stopped monitor ignores further activity")
}
