package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/prova-engine/internal/config"
	"github.com/stemsi/prova-engine/internal/logger"
	"github.com/stemsi/prova-engine/internal/mockserver"
	"github.com/stemsi/prova-engine/internal/validator"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Msg("Starting practice backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	// ─── Seed Fixture ──────────────────────────────────────────────────
	store := mockserver.NewStore()
	sessionID, assignmentID := mockserver.SeedDemo(store)
	log.Info().
		Str("session_id", sessionID.String()).
		Str("assignment_id", assignmentID.String()).
		Msg("Demo session seeded")

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: mockserver.New(store, log).Router(cfg.GinMode, cfg.AllowedOrigins),
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
