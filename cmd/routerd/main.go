package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/prism-fi/prism-router/config"
	"github.com/prism-fi/prism-router/engine"
	"github.com/prism-fi/prism-router/extensions"
	"github.com/prism-fi/prism-router/rpc"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()
}

func main() {
	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load()

	configPath := flag.String("config", defaultString(os.Getenv("PRISM_CONFIG"), "./config.toml"), "path to the TOML config file")
	readyTimeout := flag.Duration("ready-timeout", 30*time.Second, "how long to wait for the first price refresh")
	flag.Parse()

	log.Info().Str("config", *configPath).Msg("Starting prism-router")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log.Info().Int("networks", len(cfg.Networks)).Msg("Config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := engine.New(ctx, cfg, extensions.NewRegistry())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to assemble engine")
	}
	defer eng.Close()

	go eng.Run(ctx)
	if err := eng.WaitReady(ctx, *readyTimeout); err != nil {
		// Serve anyway; /ready stays unavailable until prices arrive.
		log.Warn().Err(err).Msg("Initial price fetch incomplete, starting degraded")
	}

	server := rpc.NewServer(cfg, eng)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			sigCh <- syscall.SIGTERM
		}
	}()

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}

// defaultString returns the fallback when s is empty.
func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
