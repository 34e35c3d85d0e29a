package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance breaker time deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestBreaker() (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	b := New(Options{
		FailureThreshold: 5,
		BaseCooldown:     30 * time.Second,
		MaxCooldown:      300 * time.Second,
		CooldownFactor:   2,
	})
	b.now = clock.now
	return b, clock
}

func TestBreakerTripsAfterThreshold(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker()

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		assert.Equal(t, Closed, b.Snapshot().State)
		assert.True(t, b.Allow())
	}

	b.RecordFailure()
	st := b.Snapshot()
	assert.Equal(t, Open, st.State)
	assert.Equal(t, 1, st.Trips)
	assert.Equal(t, 30*time.Second, st.Cooldown)
	assert.False(t, b.Allow())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker()

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	// Only four consecutive failures since the success: still closed.
	assert.Equal(t, Closed, b.Snapshot().State)
}

func TestBreakerProbeAfterCooldown(t *testing.T) {
	t.Parallel()
	b, clock := newTestBreaker()

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	require.Equal(t, Open, b.Snapshot().State)

	clock.advance(29 * time.Second)
	assert.False(t, b.Allow())
	assert.Equal(t, time.Second, b.RemainingCooldown())

	clock.advance(time.Second)
	// First call after the cooldown flips to half-open and is permitted.
	assert.True(t, b.Allow())
	assert.Equal(t, HalfOpen, b.Snapshot().State)
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	t.Parallel()
	b, clock := newTestBreaker()

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock.advance(30 * time.Second)
	require.True(t, b.Allow())

	b.RecordSuccess()
	st := b.Snapshot()
	assert.Equal(t, Closed, st.State)
	assert.Equal(t, 30*time.Second, st.Cooldown)
	assert.Equal(t, 0, st.Failures)
}

func TestBreakerProbeFailureEscalatesCooldown(t *testing.T) {
	t.Parallel()
	b, clock := newTestBreaker()

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	// Fail four consecutive probes: 30s doubles each time but caps at 300s.
	wantCooldowns := []time.Duration{60 * time.Second, 120 * time.Second, 240 * time.Second, 300 * time.Second}
	for _, want := range wantCooldowns {
		clock.advance(b.Snapshot().Cooldown)
		require.True(t, b.Allow())
		b.RecordFailure()
		st := b.Snapshot()
		assert.Equal(t, Open, st.State)
		assert.Equal(t, want, st.Cooldown)
	}
	assert.Equal(t, 5, b.Snapshot().Trips)
}

func TestBreakerDefaults(t *testing.T) {
	t.Parallel()
	b := New(Options{})
	st := b.Snapshot()
	assert.Equal(t, Closed, st.State)
	assert.Equal(t, 30*time.Second, st.Cooldown)
}
