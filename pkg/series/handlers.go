package series

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/errcodes"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	seriesService *Service
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListSeriesQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	seriesList, total, err := h.seriesService.ListSeriesWithTotal(ctx, ListSeriesOptions{
		Limit:  &params.Limit,
		Offset: &params.Offset,
		Genre:  params.Genre,
		Search: params.Search,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	response := map[string]interface{}{
		"series": seriesList,
		"total":  total,
	}

	return errors.WithStack(c.JSON(http.StatusOK, response))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Series")
	}

	series, err := h.seriesService.RetrieveSeriesByID(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, series))
}

func (h *handler) retrieveByName(c echo.Context) error {
	ctx := c.Request().Context()
	name := c.Param("name")
	if name == "" {
		return errcodes.NotFound("Series")
	}

	series, err := h.seriesService.RetrieveSeriesByName(ctx, name)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, series))
}

func (h *handler) latestPayload(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Series")
	}

	payload, err := h.seriesService.RetrieveLatestPayload(ctx, id, c.Param("provider"))
	if err != nil {
		return errors.WithStack(err)
	}

	// The stored bytes are the provider's own JSON; inline them rather
	// than base64-encoding.
	response := map[string]interface{}{
		"series_id":  payload.SeriesID,
		"provider":   payload.Provider,
		"fetched_at": payload.FetchedAt,
		"payload":    json.RawMessage(payload.Payload),
	}

	return errors.WithStack(c.JSON(http.StatusOK, response))
}

func (h *handler) seriesBooks(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Series")
	}

	// 404 for an unknown series rather than an empty list.
	if _, err := h.seriesService.RetrieveSeriesByID(ctx, id); err != nil {
		return errors.WithStack(err)
	}

	books, err := h.seriesService.ListBooks(ctx, ListBooksOptions{SeriesID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, books))
}
