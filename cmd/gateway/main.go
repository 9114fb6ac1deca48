package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/andresverguilla1987/mixtli-nube/internal/bootstrap"
	"github.com/andresverguilla1987/mixtli-nube/internal/config"
	"github.com/andresverguilla1987/mixtli-nube/internal/handler"
	"github.com/andresverguilla1987/mixtli-nube/internal/service"
	"github.com/andresverguilla1987/mixtli-nube/internal/thumbnail"
	pkgconfig "github.com/andresverguilla1987/mixtli-nube/pkg/config"
	pkglog "github.com/andresverguilla1987/mixtli-nube/pkg/log"
	"github.com/andresverguilla1987/mixtli-nube/pkg/middleware"
	"github.com/andresverguilla1987/mixtli-nube/pkg/pubsub"
	"github.com/andresverguilla1987/mixtli-nube/pkg/token"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	logger := pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty || cfg.Log.Level == "debug",
		ServiceName: "mixtli-gateway",
		Version:     cfg.Server.Version,
	})

	if err := cfg.Validate(); err != nil {
		var missing *pkgconfig.MissingError
		if errors.As(err, &missing) {
			logger.Error().Strs("missing", missing.Vars).Msg("required environment variables are not set")
		} else {
			logger.Error().Err(err).Msg("invalid configuration")
		}
		os.Exit(1)
	}

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).
		Str("storage_type", cfg.Storage.Type).Str("events", cfg.Events.Driver).
		Msg("starting gateway")

	ctx := context.Background()

	// Initialize storage
	store, err := bootstrap.Storage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	logger.Info().Msg("storage initialized successfully")

	// Initialize audit trail
	recorder, closeAudit, err := bootstrap.Audit(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize audit store")
	}
	defer closeAudit()

	// Initialize event bus
	events, err := pubsub.NewPubSub(cfg.Events)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize event bus")
	}
	defer events.Close()

	tokens, err := token.NewManager(cfg.Auth.AccessTokenSecret, cfg.Auth.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize token manager")
	}

	// Initialize services
	access, err := service.NewAccessService(store, tokens, recorder, service.AccessOptions{TokenTTL: cfg.Auth.AccessTokenTTL})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize access service")
	}
	thumbs := thumbnail.NewGenerator(store, cfg.Thumbnail)
	presignOpts := service.PresignOptions{
		Upload: service.TTLRange{
			Default: cfg.Presign.UploadTTL,
			Min:     cfg.Presign.UploadMinTTL,
			Max:     cfg.Presign.UploadMaxTTL,
		},
		Download: service.TTLRange{
			Default: cfg.Presign.DownloadTTL,
			Min:     cfg.Presign.DownloadMinTTL,
			Max:     cfg.Presign.DownloadMaxTTL,
		},
	}

	h := handler.NewHandler(handler.Services{
		Presign: service.NewPresignService(store, access, presignOpts),
		Listing: service.NewListingService(store, store, access, thumbs, cfg.Presign.DownloadTTL),
		Access:  access,
		Trash:   service.NewTrashService(store, recorder, cfg.Trash.Concurrency, nil),
		Archive: service.NewArchiveService(store, access, cfg.Archive.Deflate),
		Upload:  service.NewUploadService(store, events, thumbs, cfg.Upload.MaxBytes),
		Audit:   recorder,
	}, handler.Options{
		AdminToken:     cfg.Auth.AdminToken,
		Version:        cfg.Server.Version,
		MaxUploadBytes: cfg.Upload.MaxBytes,
	})

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(pkglog.GinRecovery())
	r.Use(pkglog.GinMiddleware(logger))
	r.Use(middleware.CORS(cfg.CORS))
	h.RegisterRoutes(r)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.UploadDeadline(r, cfg.Upload.ReadTimeout),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gateway")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("gateway stopped")
}
