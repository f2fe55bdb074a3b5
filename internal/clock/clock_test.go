package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AfterFunc(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := NewFake(start)

	fired := 0
	fake.AfterFunc(300*time.Millisecond, func() { fired++ })

	fake.Advance(200 * time.Millisecond)
	assert.Equal(t, 0, fired)

	fake.Advance(100 * time.Millisecond)
	assert.Equal(t, 1, fired)
	assert.Equal(t, start.Add(300*time.Millisecond), fake.Now())

	// A fired one-shot timer does not fire again.
	fake.Advance(time.Second)
	assert.Equal(t, 1, fired)
}

func TestFake_StopAndReset(t *testing.T) {
	fake := NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	fired := 0
	timer := fake.AfterFunc(100*time.Millisecond, func() { fired++ })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second stop reports already stopped")
	fake.Advance(time.Second)
	assert.Equal(t, 0, fired)

	// Reset re-arms a stopped timer from the current instant.
	assert.False(t, timer.Reset(50*time.Millisecond))
	fake.Advance(49 * time.Millisecond)
	assert.Equal(t, 0, fired)
	fake.Advance(time.Millisecond)
	assert.Equal(t, 1, fired)
}

func TestFake_ResetExtendsDeadline(t *testing.T) {
	fake := NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	fired := 0
	timer := fake.AfterFunc(100*time.Millisecond, func() { fired++ })

	fake.Advance(90 * time.Millisecond)
	assert.True(t, timer.Reset(100*time.Millisecond))

	fake.Advance(90 * time.Millisecond)
	assert.Equal(t, 0, fired, "reset pushed the deadline out")
	fake.Advance(10 * time.Millisecond)
	assert.Equal(t, 1, fired)
}

func TestFake_TimersFireInDeadlineOrder(t *testing.T) {
	fake := NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	var order []string
	fake.AfterFunc(200*time.Millisecond, func() { order = append(order, "b") })
	fake.AfterFunc(100*time.Millisecond, func() { order = append(order, "a") })

	fake.Advance(time.Second)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestFake_CallbackMayArmNewTimer(t *testing.T) {
	fake := NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	fired := 0
	fake.AfterFunc(100*time.Millisecond, func() {
		fake.AfterFunc(100*time.Millisecond, func() { fired++ })
	})

	fake.Advance(200 * time.Millisecond)
	assert.Equal(t, 1, fired)
}
