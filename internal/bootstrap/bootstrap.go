// Package bootstrap builds the long-lived dependencies shared by the binaries.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/andresverguilla1987/mixtli-nube/internal/audit"
	"github.com/andresverguilla1987/mixtli-nube/internal/config"
	"github.com/andresverguilla1987/mixtli-nube/pkg/database"
	"github.com/andresverguilla1987/mixtli-nube/pkg/log"
	"github.com/andresverguilla1987/mixtli-nube/pkg/storage"
)

// ObjectStore is a storage backend that can also presign URLs.
type ObjectStore interface {
	storage.Storage
	storage.Presigner
}

// Storage initializes the storage backend based on configuration.
func Storage(ctx context.Context, cfg *config.Config) (ObjectStore, error) {
	switch cfg.Storage.Type {
	case config.StorageS3:
		return storage.NewS3Storage(ctx, cfg.Storage.S3)
	case config.StorageLocal:
		return storage.NewLocalStorage(cfg.Storage.Local)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

// Audit returns the GORM-backed recorder when auditing is enabled, a log-only
// recorder otherwise. The cleanup function closes the database.
func Audit(cfg *config.Config) (audit.Recorder, func(), error) {
	l := log.L()
	if !cfg.Audit.Enabled {
		l.Info().Msg("audit store disabled, audit entries go to the log only")
		return audit.NewLogRecorder(), func() {}, nil
	}

	db, err := database.New(&cfg.Audit.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit database: %w", err)
	}
	store, err := audit.NewGormStore(db)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				l.Error().Err(err).Msg("error closing audit database")
			}
		}
	}
	l.Info().Str("driver", cfg.Audit.Database.Driver).Msg("audit store initialized")
	return store, cleanup, nil
}
