package indexer

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Appsum/JackettCore/internal/indexer/schema"
)

// Handlers provides HTTP handlers for indexer management.
type Handlers struct {
	registry *Registry
}

func NewHandlers(registry *Registry) *Handlers {
	return &Handlers{registry: registry}
}

// RegisterRoutes registers the indexer management routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id/config", h.GetConfig)
	g.POST("/:id/config", h.SetConfig)
	g.POST("/:id/test", h.Test)
	g.DELETE("/:id", h.Delete)
}

// IndexerInfo is the list representation of one indexer.
type IndexerInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SiteLink    string `json:"siteLink"`
	Configured  bool   `json:"configured"`
	Categories  []int  `json:"categories"`
}

// List returns every known indexer, configured or not, ordered by name.
func (h *Handlers) List(c echo.Context) error {
	all := h.registry.List()
	out := make([]IndexerInfo, 0, len(all))
	for _, ix := range all {
		out = append(out, IndexerInfo{
			ID:          ix.ID(),
			Name:        ix.DisplayName(),
			Description: ix.Description(),
			SiteLink:    ix.SiteLink(),
			Configured:  ix.IsConfigured(),
			Categories:  ix.Categories().UniversalIDs(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// GetConfig returns the setup form state for one indexer, secrets masked.
func (h *Handlers) GetConfig(c echo.Context) error {
	payload, err := h.registry.SetupPayload(c.Param("id"))
	if err != nil {
		return h.toHTTPError(err)
	}
	return c.JSON(http.StatusOK, payload)
}

// SetConfig applies a submitted setup form. A site-side rejection comes back
// as 400 together with the editable form state so the client can re-render
// it with the user's entries intact.
func (h *Handlers) SetConfig(c echo.Context) error {
	var payload schema.Payload
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid configuration payload")
	}

	err := h.registry.Configure(c.Request().Context(), c.Param("id"), payload)
	if err == nil {
		return c.NoContent(http.StatusNoContent)
	}

	if rejected, ok := IsConfigRejected(err); ok {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error":  rejected.Message,
			"config": rejected.Payload,
		})
	}

	var validation *schema.ValidationError
	if errors.As(err, &validation) {
		return echo.NewHTTPError(http.StatusBadRequest, validation.Error())
	}

	return h.toHTTPError(err)
}

// Test runs a live browse query against a configured indexer.
func (h *Handlers) Test(c echo.Context) error {
	if err := h.registry.Test(c.Request().Context(), c.Param("id")); err != nil {
		return h.toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Delete removes an indexer's stored configuration and resets it.
func (h *Handlers) Delete(c echo.Context) error {
	if err := h.registry.Delete(c.Param("id")); err != nil {
		return h.toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrUnknownIndexer):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNoResults):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		var broken *BrokenError
		if errors.As(err, &broken) {
			return echo.NewHTTPError(http.StatusBadGateway, broken.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
