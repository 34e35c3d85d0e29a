package providers

import (
	"context"
	"time"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/breaker"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// Gate serializes and protects outbound calls for one provider. The rate
// limiter enforces a minimum interval between calls (one in-flight call
// per provider per process); the breaker short-circuits a misbehaving
// provider; the timeout bounds every call.
type Gate struct {
	name    string
	breaker *breaker.Breaker
	limiter *rate.Limiter
	timeout time.Duration
}

func NewGate(name string, b *breaker.Breaker, minInterval, timeout time.Duration) *Gate {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &Gate{
		name:    name,
		breaker: b,
		limiter: rate.NewLimiter(limit, 1),
		timeout: timeout,
	}
}

// Do places one call through the gate. ErrCircuitOpen is returned without
// calling fn when the breaker is blocking. A data miss records a breaker
// success; only infrastructure failures record a breaker failure.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) (*FetchResult, error)) (*FetchResult, error) {
	if !g.breaker.Allow() {
		return nil, errors.WithStack(ErrCircuitOpen)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, errors.WithStack(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	res, err := fn(callCtx)
	if err != nil {
		if IsInfra(err) {
			g.breaker.RecordFailure()
		}
		return nil, err
	}

	g.breaker.RecordSuccess()
	return res, nil
}

// Blocked reports whether the breaker would refuse a call right now. It
// never consumes the half-open probe, so callers that spend quota before
// calling can check it first without a refusal costing a unit.
func (g *Gate) Blocked() bool {
	return g.breaker.RemainingCooldown() > 0
}

func (g *Gate) Name() string {
	return g.name
}

func (g *Gate) Breaker() *breaker.Breaker {
	return g.breaker
}
