package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	apimw "github.com/Appsum/JackettCore/internal/api/middleware"
	"github.com/Appsum/JackettCore/internal/history"
	"github.com/Appsum/JackettCore/internal/indexer"
	"github.com/Appsum/JackettCore/internal/indexer/search"
)

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(apimw.SecurityHeaders())
	s.echo.Use(middleware.BodyLimit("2M"))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Debug().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			// Skip compression for WebSocket upgrades and torrent payloads.
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

// setupRoutes configures API routes. Download links are authenticated by
// their signed token, everything else under /api/v1 by the API key.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	// Proxied download links. Torrent clients cannot send custom headers,
	// so these sit outside the API key guard.
	s.echo.GET("/dl/:indexer/:token/:filename", s.handleProxyDownload)
	s.echo.GET("/bh/:indexer/:token/:filename", s.handleBlackholeDownload)

	api := s.echo.Group("/api/v1")
	api.Use(apimw.APIKey(s.settings.APIKey))

	api.GET("/status", s.getStatus)
	api.GET("/ws", s.hub.HandleWebSocket)

	api.GET("/settings", s.getSettings)
	api.PUT("/settings", s.updateSettings)
	api.GET("/logs", s.getRecentLogs)

	indexerHandlers := indexer.NewHandlers(s.registry)
	indexerHandlers.RegisterRoutes(api.Group("/indexers"))

	searchHandlers := search.NewHandlers(s.dispatcher, s.resultCache, s.settings)
	searchHandlers.RegisterRoutes(api.Group("/search"))

	historyHandlers := history.NewHandlers(s.historyService)
	historyHandlers.RegisterRoutes(api.Group("/history"))
}
