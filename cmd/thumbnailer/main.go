package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresverguilla1987/mixtli-nube/internal/bootstrap"
	"github.com/andresverguilla1987/mixtli-nube/internal/config"
	"github.com/andresverguilla1987/mixtli-nube/internal/thumbnail"
	pkglog "github.com/andresverguilla1987/mixtli-nube/pkg/log"
	"github.com/andresverguilla1987/mixtli-nube/pkg/pubsub"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialise structured logger.
	l := pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty || cfg.Log.Level == "debug",
		ServiceName: "mixtli-thumbnailer",
		Version:     cfg.Server.Version,
	})
	l.Info().Msg("thumbnailer starting")

	if err := cfg.ValidateStorage(); err != nil {
		l.Error().Err(err).Msg("invalid storage configuration")
		os.Exit(1)
	}
	if cfg.Events.Driver == "" || cfg.Events.Driver == pubsub.DriverNone {
		l.Error().Msg("thumbnailer needs an event bus, set EVENTS_DRIVER to redis or kafka")
		os.Exit(1)
	}

	store, err := bootstrap.Storage(context.Background(), cfg)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to init storage")
	}

	events, err := pubsub.NewPubSub(cfg.Events)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to init event bus")
	}

	worker := thumbnail.NewWorker(events, thumbnail.NewGenerator(store, cfg.Thumbnail))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	// Block until SIGINT / SIGTERM or the worker gives up.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-done:
		if err != nil {
			l.Error().Err(err).Msg("worker stopped")
		}
	}

	l.Info().Msg("shutting down: waiting for in-flight thumbnail to complete")
	cancel()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		l.Warn().Msg("shutdown timed out after 30s")
	}

	if err := events.Close(); err != nil {
		l.Error().Err(err).Msg("error closing event bus")
	}
	l.Info().Msg("shutdown complete")
}
