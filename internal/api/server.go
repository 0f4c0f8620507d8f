// Package api assembles the HTTP server and its routes.
package api

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Appsum/JackettCore/internal/config"
	"github.com/Appsum/JackettCore/internal/history"
	"github.com/Appsum/JackettCore/internal/indexer"
	"github.com/Appsum/JackettCore/internal/indexer/cache"
	"github.com/Appsum/JackettCore/internal/indexer/search"
	"github.com/Appsum/JackettCore/internal/indexer/trackers"
	"github.com/Appsum/JackettCore/internal/logger"
	"github.com/Appsum/JackettCore/internal/protect"
	"github.com/Appsum/JackettCore/internal/webclient"
	"github.com/Appsum/JackettCore/internal/websocket"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Server handles HTTP requests for the API.
type Server struct {
	echo      *echo.Echo
	db        *sql.DB
	hub       *websocket.Hub
	logger    zerolog.Logger
	cfg       *config.Config
	settings  *config.SettingsService
	logStream *logger.Stream

	protector      *protect.Service
	webClient      *webclient.HTTPClient
	signer         *cache.LinkSigner
	registry       *indexer.Registry
	resultCache    *cache.Cache
	dispatcher     *search.Dispatcher
	historyService *history.Service
}

// NewServer wires up the services and routes. The registry is initialized
// here, so every saved indexer configuration is loaded before the first
// request is served.
func NewServer(db *sql.DB, hub *websocket.Hub, cfg *config.Config, settings *config.SettingsService, logStream *logger.Stream, zl zerolog.Logger) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	protector, err := protect.NewFromDir(cfg.Data.Dir)
	if err != nil {
		return nil, err
	}

	webClient, err := webclient.New(zl)
	if err != nil {
		return nil, err
	}

	signer := cache.NewLinkSigner(protector.SigningKey())
	resultCache := cache.New(signer)

	deps := trackers.Deps{
		Client:    webClient,
		Protector: protector,
		Logger:    zl,
	}
	registry := indexer.NewRegistry(cfg.IndexerConfigDir(), func() ([]indexer.Indexer, error) {
		return trackers.All(deps)
	}, protector, zl)
	registry.SetResultStore(resultCache)
	if err := registry.Init(); err != nil {
		return nil, err
	}

	historyService := history.NewService(db, zl)

	dispatcher := search.NewDispatcher(registry, resultCache, zl)
	dispatcher.SetBroadcaster(hub)
	dispatcher.SetRecorder(historyService)

	s := &Server{
		echo:           e,
		db:             db,
		hub:            hub,
		logger:         zl,
		cfg:            cfg,
		settings:       settings,
		logStream:      logStream,
		protector:      protector,
		webClient:      webClient,
		signer:         signer,
		registry:       registry,
		resultCache:    resultCache,
		dispatcher:     dispatcher,
		historyService: historyService,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Start begins serving on the given address. It blocks until shutdown.
func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Registry exposes the indexer registry for background task wiring.
func (s *Server) Registry() *indexer.Registry {
	return s.registry
}

// ResultCache exposes the result cache for background task wiring.
func (s *Server) ResultCache() *cache.Cache {
	return s.resultCache
}

// History exposes the history service for background task wiring.
func (s *Server) History() *history.Service {
	return s.historyService
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"version":    Version,
		"indexers":   len(s.registry.List()),
		"configured": len(s.registry.Configured()),
		"wsClients":  s.hub.ClientCount(),
	})
}
