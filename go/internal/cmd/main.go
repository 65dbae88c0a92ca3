package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/raceloop/typerace/go/clients/quote_client"
	"github.com/raceloop/typerace/go/internal/gateway"
	"github.com/raceloop/typerace/go/internal/prompt"
	"github.com/raceloop/typerace/go/internal/race"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	configPath := getEnv("CONFIG_PATH", "config.yaml")
	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", configPath).Msg("could not load config file, using defaults")
		cfg = defaultConfig()
	}
	applyEnvOverrides(cfg)

	log.Info().
		Str("port", cfg.Server.Port).
		Str("quote_api", cfg.Quotes.BaseURL).
		Msg("starting typerace server")

	// Prompt provider over the remote quote API, with local fallback.
	quoteClient := quote_client.NewQuoteClient(cfg.Quotes.BaseURL)
	prompts := prompt.NewProvider(quoteClient, time.Duration(cfg.Quotes.TimeoutSec)*time.Second)

	// Gateway fan-out and the coordination engine.
	connectionManager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	app := race.NewApp(prompts, connectionManager, clockwork.NewRealClock(), race.Config{
		CountdownSeconds: cfg.Race.CountdownSeconds,
	})

	wsHandler := gateway.NewWebSocketHandler(connectionManager, app)
	stateHandler := gateway.NewStateHandler(app)

	server := setupServer(cfg, wsHandler, stateHandler)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go connectionManager.Start(ctx)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	cancel()

	log.Info().Msg("typerace server shutdown complete")
}
