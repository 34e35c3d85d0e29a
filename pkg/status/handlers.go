// Package status exposes read-only introspection over the provider gates:
// circuit breaker state and quota usage per provider.
package status

import (
	"net/http"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/quota"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	registry     *providers.Registry
	quotaService *quota.Service
}

type breakerStatus struct {
	State           string  `json:"state"`
	Failures        int     `json:"failures"`
	Trips           int     `json:"trips"`
	CooldownSeconds float64 `json:"cooldown_seconds"`
}

type quotaStatus struct {
	Limited   bool `json:"limited"`
	Ceiling   int  `json:"ceiling,omitempty"`
	Used      int  `json:"used,omitempty"`
	Remaining int  `json:"remaining,omitempty"`
}

type providerStatus struct {
	Provider string        `json:"provider"`
	Breaker  breakerStatus `json:"breaker"`
	Quota    quotaStatus   `json:"quota"`
}

func (h *handler) providers(c echo.Context) error {
	ctx := c.Request().Context()

	statuses := []providerStatus{}
	for _, name := range h.registry.Names() {
		p, ok := h.registry.Get(name)
		if !ok {
			continue
		}

		snap := p.Gate.Breaker().Snapshot()
		status := providerStatus{
			Provider: name,
			Breaker: breakerStatus{
				State:           snap.State.String(),
				Failures:        snap.Failures,
				Trips:           snap.Trips,
				CooldownSeconds: snap.Cooldown.Seconds(),
			},
			Quota: quotaStatus{Limited: h.quotaService.Limited(name)},
		}

		if status.Quota.Limited {
			used, err := h.quotaService.UsedToday(ctx, name)
			if err != nil {
				return errors.WithStack(err)
			}
			remaining, err := h.quotaService.Remaining(ctx, name)
			if err != nil {
				return errors.WithStack(err)
			}
			status.Quota.Ceiling = h.quotaService.Ceiling(name)
			status.Quota.Used = used
			status.Quota.Remaining = remaining
		}

		statuses = append(statuses, status)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"providers": statuses,
	})
}
