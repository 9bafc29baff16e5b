package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/edusync/examroom-client/internal/config"
	"github.com/edusync/examroom-client/internal/logger"
	"github.com/edusync/examroom-client/internal/simserver"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.SimPort).
		Dur("warning_lead", cfg.WarningLead).
		Msg("Starting exam server simulator")

	// ─── Start Presence Sweep ──────────────────────────────────────────
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()

	server := simserver.New(cfg, log)
	go server.Hub().Run(sweepCtx)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.SimPort,
		Handler: server.Router(),
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.SimPort).Msg("Simulator listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	sweepCancel()
	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
