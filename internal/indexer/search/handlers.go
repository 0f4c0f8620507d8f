package search

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Appsum/JackettCore/internal/indexer"
	"github.com/Appsum/JackettCore/internal/indexer/cache"
)

// ConfigProvider exposes the server settings link rewriting depends on.
type ConfigProvider interface {
	BaseURL() string
	BlackholeDir() string
}

// Handlers provides HTTP handlers for search operations.
type Handlers struct {
	dispatcher *Dispatcher
	cache      *cache.Cache
	config     ConfigProvider
}

func NewHandlers(dispatcher *Dispatcher, resultCache *cache.Cache, config ConfigProvider) *Handlers {
	return &Handlers{
		dispatcher: dispatcher,
		cache:      resultCache,
		config:     config,
	}
}

// RegisterRoutes registers the search routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.Search)
	g.GET("/cached", h.Cached)
}

// SearchRequest represents a search request.
type SearchRequest struct {
	Query      string `query:"query"`
	Categories string `query:"categories"` // comma-separated universal category IDs
	Indexer    string `query:"indexer"`    // single indexer ID, or "all"
}

// Search dispatches a live query and returns the merged results with
// download links rewritten to the local proxy.
func (h *Handlers) Search(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid search request")
	}

	categories, err := parseCategories(req.Categories)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	query := &indexer.Query{
		Term:       req.Query,
		Categories: categories,
		Indexer:    req.Indexer,
	}

	response, err := h.dispatcher.Dispatch(c.Request().Context(), query)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	response.Results = h.cache.RewriteLinks(response.Results, h.config.BaseURL(), h.config.BlackholeDir())
	return c.JSON(http.StatusOK, response)
}

// Cached returns the most recent results of every indexer, newest first,
// with links rewritten for the current server settings.
func (h *Handlers) Cached(c echo.Context) error {
	results := h.cache.GetAll()
	results = h.cache.RewriteLinks(results, h.config.BaseURL(), h.config.BlackholeDir())
	for i := range results {
		results[i].Peers -= results[i].Seeders
		if results[i].Peers < 0 {
			results[i].Peers = 0
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"results": results,
		"total":   len(results),
	})
}

func parseCategories(csv string) ([]int, error) {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return nil, nil
	}
	parts := strings.Split(csv, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid category %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}
