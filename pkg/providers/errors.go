package providers

import (
	"context"
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// ErrCircuitOpen means the gate refused to place the call at all. It is
// distinct from a failed call so waterfall callers can fall through to the
// next provider without mis-attributing a trip.
var ErrCircuitOpen = errors.New("provider circuit open")

// ErrQuotaExhausted is a refusal, not a failure: callers are expected to
// check quota before calling, and this surfaces the race where they lose.
var ErrQuotaExhausted = errors.New("provider quota exhausted")

// InfraError is an infrastructure failure (timeout, connection error, 5xx,
// 429). Only these count toward tripping a provider's circuit breaker; an
// empty 200 or a 404 is a data miss and counts as a success.
type InfraError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *InfraError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: upstream returned %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *InfraError) Unwrap() error {
	return e.Err
}

// Infra wraps a transport-level error as an infrastructure failure.
func Infra(provider string, err error) error {
	return &InfraError{Provider: provider, Err: err}
}

// InfraStatus marks an HTTP status as an infrastructure failure.
func InfraStatus(provider string, code int) error {
	return &InfraError{Provider: provider, StatusCode: code}
}

// RetryableStatus reports whether an HTTP status should be treated as an
// infrastructure failure. 404 is deliberately excluded: the provider is
// up, it just has nothing for this query.
func RetryableStatus(code int) bool {
	return code == 429 || code >= 500
}

// IsInfra reports whether an error counts toward the circuit breaker.
func IsInfra(err error) bool {
	if err == nil {
		return false
	}
	var infra *InfraError
	if errors.As(err, &infra) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
