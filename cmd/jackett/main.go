package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Appsum/JackettCore/internal/api"
	"github.com/Appsum/JackettCore/internal/config"
	"github.com/Appsum/JackettCore/internal/database"
	"github.com/Appsum/JackettCore/internal/logger"
	"github.com/Appsum/JackettCore/internal/scheduler"
	"github.com/Appsum/JackettCore/internal/scheduler/tasks"
	"github.com/Appsum/JackettCore/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Local development overrides; missing .env is fine.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logStream := logger.NewStream(0)
	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Path:   cfg.Logging.File,
	}, logStream)
	defer log.Close()

	log.Info().
		Str("version", api.Version).
		Str("dataDir", cfg.Data.Dir).
		Msg("starting JackettCore")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	settings, err := config.NewSettingsService(cfg.Data.Dir,
		fmt.Sprintf("http://localhost:%d", cfg.Server.Port), log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load server settings")
	}

	hub := websocket.NewHub()
	go hub.Run()
	logStream.SetHub(hub)

	server, err := api.NewServer(db.Conn(), hub, cfg, settings, logStream, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize server")
	}

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	if err := tasks.RegisterCacheRefreshTask(sched, server.Registry(), server.ResultCache()); err != nil {
		log.Fatal().Err(err).Msg("failed to register cache refresh task")
	}
	if err := tasks.RegisterHistoryCleanupTask(sched, server.History()); err != nil {
		log.Fatal().Err(err).Msg("failed to register history cleanup task")
	}
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	go func() {
		addr := cfg.Server.Address()
		log.Info().Str("address", addr).Msg("HTTP server listening")
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server stopped unexpectedly")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := sched.Stop(); err != nil {
		log.Warn().Err(err).Msg("scheduler shutdown failed")
	}
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
