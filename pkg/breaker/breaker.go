// Package breaker implements the per-provider three-state circuit breaker.
// One Breaker is constructed per provider at startup and shared by every
// caller; there are no package-level singletons so tests can build isolated
// instances.
package breaker

import (
	"sync"
	"time"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	}
	return "unknown"
}

type Options struct {
	FailureThreshold int           // consecutive failures before tripping
	BaseCooldown     time.Duration // cooldown after the first trip
	MaxCooldown      time.Duration // cap for the escalating cooldown
	CooldownFactor   float64       // multiplier applied on a failed probe
}

func (o Options) withDefaults() Options {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 5
	}
	if o.BaseCooldown <= 0 {
		o.BaseCooldown = 30 * time.Second
	}
	if o.MaxCooldown <= 0 {
		o.MaxCooldown = 300 * time.Second
	}
	if o.CooldownFactor <= 1 {
		o.CooldownFactor = 2
	}
	return o
}

// Status is a point-in-time snapshot of a breaker for introspection.
type Status struct {
	State       State         `json:"state"`
	Failures    int           `json:"failures"`
	Trips       int           `json:"trips"`
	Cooldown    time.Duration `json:"cooldown"`
	LastFailure time.Time     `json:"last_failure"`
}

type Breaker struct {
	mu sync.Mutex

	opts        Options
	state       State
	failures    int
	lastFailure time.Time
	cooldown    time.Duration
	trips       int

	now func() time.Time
}

func New(opts Options) *Breaker {
	opts = opts.withDefaults()
	return &Breaker{
		opts:     opts,
		cooldown: opts.BaseCooldown,
		now:      time.Now,
	}
}

// Allow reports whether a call may proceed. While open, it returns false
// until the cooldown has elapsed; the first call after that flips the
// breaker to half-open and is permitted as the single probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed, HalfOpen:
		return true
	case Open:
		if b.now().Sub(b.lastFailure) < b.cooldown {
			return false
		}
		b.state = HalfOpen
		return true
	}
	return true
}

// RecordSuccess resets the failure count. A successful half-open probe
// closes the breaker and resets the cooldown to its base value. Data
// misses (a provider that is up but has nothing for a query) must be
// recorded as successes, not failures.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == HalfOpen {
		b.state = Closed
		b.cooldown = b.opts.BaseCooldown
	}
}

// RecordFailure counts an infrastructure failure. At the failure threshold
// a closed breaker trips open; a failed half-open probe reopens the
// breaker and escalates the cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()

	switch b.state {
	case Closed:
		if b.failures >= b.opts.FailureThreshold {
			b.state = Open
			b.cooldown = b.opts.BaseCooldown
			b.trips++
		}
	case HalfOpen:
		b.state = Open
		b.cooldown = time.Duration(float64(b.cooldown) * b.opts.CooldownFactor)
		if b.cooldown > b.opts.MaxCooldown {
			b.cooldown = b.opts.MaxCooldown
		}
		b.trips++
	}
}

// RemainingCooldown returns how long Allow will keep refusing. Zero means
// the breaker is not blocking.
func (b *Breaker) RemainingCooldown() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Open {
		return 0
	}
	remaining := b.cooldown - b.now().Sub(b.lastFailure)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Snapshot returns the current breaker state for the status API.
func (b *Breaker) Snapshot() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Status{
		State:       b.state,
		Failures:    b.failures,
		Trips:       b.trips,
		Cooldown:    b.cooldown,
		LastFailure: b.lastFailure,
	}
}
