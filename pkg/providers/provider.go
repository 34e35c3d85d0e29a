// Package providers defines the uniform contract for bibliographic data
// sources and the per-provider gate (circuit breaker + rate limiter +
// timeout) every outbound call goes through.
package providers

import (
	"context"
	"encoding/json"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/models"
)

// FetchResult is a provider's account of one series. A nil Series with a
// nil error from FetchSeries is a data miss ("not found"), never a
// failure. Raw carries the provider's serialized response for the audit
// envelope.
type FetchResult struct {
	Provider string
	Series   *models.SourceSeries
	Raw      json.RawMessage
}

// Miss reports whether the provider was reachable but had nothing.
func (r *FetchResult) Miss() bool {
	return r == nil || r.Series == nil
}

// Client is the narrow contract every provider client implements.
// Operational failures are returned as errors (classified by IsInfra);
// "nothing found" is a nil-Series result with a nil error.
type Client interface {
	Name() string
	FetchSeries(ctx context.Context, name string) (*FetchResult, error)
}
