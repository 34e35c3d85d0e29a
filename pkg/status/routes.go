package status

import (
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/quota"
	"github.com/labstack/echo/v4"
)

func RegisterRoutesWithGroup(g *echo.Group, registry *providers.Registry, quotaService *quota.Service) {
	h := handler{
		registry:     registry,
		quotaService: quotaService,
	}

	g.GET("", h.providers)
}
