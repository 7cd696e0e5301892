package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/alias/go/internal/backends"
	"github.com/mcdev12/alias/go/internal/config"
	"github.com/mcdev12/alias/go/internal/relay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(os.Getenv("ALIAS_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	if cfg.Backend.Kind == config.BackendRelay {
		log.Fatal().Msg("the relay cannot use the relay backend, pick memory, postgres, nats or redis")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, closeBackend, err := backends.Open(ctx, cfg, "")
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Backend.Kind).Msg("failed to open backend")
	}
	defer closeBackend()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	relayCfg := relay.DefaultConfig()
	relayCfg.PublicURL = cfg.Relay.PublicURL
	relayCfg.AllowedOrigins = cfg.Relay.AllowedOrigins
	service := relay.NewService(backend, relayCfg, registry)

	log.Info().
		Str("backend", cfg.Backend.Kind).
		Str("port", cfg.Relay.Port).
		Msg("starting relay")

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Relay.Port),
		Handler:           service.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serviceDone := make(chan struct{})
	go func() {
		defer close(serviceDone)
		service.Start(ctx)
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Websocket connections are hijacked, so Shutdown does not wait for them;
	// cancelling the service closes them.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	cancel()
	<-serviceDone

	log.Info().Msg("relay shutdown complete")
}
