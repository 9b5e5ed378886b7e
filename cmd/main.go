package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cfarena/tournament-system/brackets"
	"github.com/cfarena/tournament-system/config"
	"github.com/cfarena/tournament-system/handlers"
	"github.com/cfarena/tournament-system/oracle"
	"github.com/cfarena/tournament-system/repositories"
	api "github.com/cfarena/tournament-system/routes"
	"github.com/cfarena/tournament-system/services"
	"github.com/go-chi/chi/v5"
)

const reaperInterval = 10 * time.Minute

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.String("oracle", cfg.OracleBaseURL),
		slog.Duration("poll_interval", cfg.BracketPollInterval))

	wsHub := brackets.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket Hub started")

	tournamentRepo := repositories.NewInMemoryTournamentRepository()
	bracketEngine := brackets.NewEngine()
	oracleClient := oracle.NewClient(cfg.OracleBaseURL)

	monitorService := services.NewMonitorService(
		tournamentRepo,
		bracketEngine,
		oracleClient,
		wsHub,
		logger,
		cfg.BracketPollInterval,
	)
	tournamentService := services.NewTournamentService(
		tournamentRepo,
		bracketEngine,
		oracleClient,
		wsHub,
		monitorService,
		logger,
	)
	logger.Info("Services initialized")

	// Stale tournaments (never filled or already finished) are reaped on a
	// fixed cadence; everything lives in process memory.
	go func() {
		ticker := time.NewTicker(reaperInterval)
		defer ticker.Stop()
		logger.Info("tournament reaper started",
			slog.Duration("interval", reaperInterval),
			slog.Duration("ttl", cfg.TournamentTTL))
		for range ticker.C {
			tournamentService.PruneStale(context.Background(), cfg.TournamentTTL)
		}
	}()

	tournamentHandler := handlers.NewTournamentHandler(tournamentService, monitorService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, tournamentService, logger)
	logger.Info("HTTP handlers initialized")

	router := chi.NewRouter()
	api.SetupRoutes(router, cfg.AllowedOrigins, tournamentHandler, webSocketHandler)
	logger.Info("Routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		} else {
			logger.Info("server stopped gracefully")
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		} else {
			logger.Info("server shutdown complete")
		}
	}
	logger.Info("application exited")
}
