package ratelimit

import (
	"testing"
	"time"

	assert "github.com/stretchr/testify/require"
)

func TestWindowAllowsUpToLimit(t *testing.T) {
	w := NewWindow(3, time.Minute)
	now := time.Now()

	assert.True(t, w.AllowAt("k", now))
	assert.True(t, w.AllowAt("k", now))
	assert.True(t, w.AllowAt("k", now))
	assert.False(t, w.AllowAt("k", now))

	// Keys are independent.
	assert.True(t, w.AllowAt("other", now))
}

func TestWindowSlides(t *testing.T) {
	w := NewWindow(2, time.Minute)
	now := time.Now()

	assert.True(t, w.AllowAt("k", now))
	assert.True(t, w.AllowAt("k", now.Add(30*time.Second)))
	assert.False(t, w.AllowAt("k", now.Add(45*time.Second)))

	// The first event ages out after a minute.
	assert.True(t, w.AllowAt("k", now.Add(61*time.Second)))
}

func TestRejectedEventsDoNotExtendPenalty(t *testing.T) {
	w := NewWindow(1, time.Minute)
	now := time.Now()

	assert.True(t, w.AllowAt("k", now))
	// Probing while throttled records nothing.
	for i := 1; i <= 10; i++ {
		assert.False(t, w.AllowAt("k", now.Add(time.Duration(i)*time.Second)))
	}
	assert.True(t, w.AllowAt("k", now.Add(61*time.Second)))
}

func TestRemaining(t *testing.T) {
	w := NewWindow(3, time.Minute)
	now := time.Now()

	assert.Equal(t, 3, w.Remaining("k", now))
	w.AllowAt("k", now)
	w.AllowAt("k", now)
	assert.Equal(t, 1, w.Remaining("k", now))
	w.AllowAt("k", now)
	assert.Equal(t, 0, w.Remaining("k", now))
	assert.Equal(t, 3, w.Remaining("k", now.Add(2*time.Minute)))
}

func TestSweepDropsExpiredKeys(t *testing.T) {
	w := NewWindow(5, time.Minute)
	now := time.Now()

	w.AllowAt("stale", now)
	w.AllowAt("fresh", now.Add(50*time.Second))

	removed := w.Sweep(now.Add(70 * time.Second))
	assert.Equal(t, 1, removed)

	// The fresh key keeps its history.
	w.AllowAt("fresh", now.Add(55*time.Second))
	assert.Equal(t, 3, w.Remaining("fresh", now.Add(56*time.Second)))
}
