package audit

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"

	"github.com/andresverguilla1987/mixtli-nube/internal/domain"
	"github.com/andresverguilla1987/mixtli-nube/pkg/database"
	"github.com/andresverguilla1987/mixtli-nube/pkg/log"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// GormStore logs audit entries and persists them in audit_entries.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GORM-backed recorder and migrates its table.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := database.AutoMigrate(db, &domain.AuditEntryModel{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Record logs e and stores it. Storage failures are logged only.
func (s *GormStore) Record(ctx context.Context, e domain.AuditEntry) {
	fill(ctx, &e)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.ID == "" {
		// ULIDs order by creation time.
		id, err := ulid.New(ulid.Timestamp(e.CreatedAt), rand.Reader)
		if err != nil {
			l := log.Ctx(ctx)
			l.Error().Err(err).Msg("failed to generate audit id")
			return
		}
		e.ID = id.String()
	}

	Log(ctx, e, "audit")

	// Detach from request cancellation so a client hanging up does not lose the entry.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.db.WithContext(writeCtx).Create(domain.AuditEntryToModel(&e)).Error; err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(FieldAction, e.Action).Msg("failed to persist audit entry")
	}
}

// List returns the newest entries, optionally for one album.
func (s *GormStore) List(ctx context.Context, album string, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	q := s.db.WithContext(ctx).Model(&domain.AuditEntryModel{})
	if album != "" {
		q = q.Where("album = ?", album)
	}

	var models []domain.AuditEntryModel
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}

	entries := make([]domain.AuditEntry, 0, len(models))
	for i := range models {
		entries = append(entries, models[i].ToDomain())
	}
	return entries, nil
}
