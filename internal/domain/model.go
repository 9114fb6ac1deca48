package domain

import (
	"time"

	"github.com/andresverguilla1987/mixtli-nube/pkg/database"
)

// AuditEntryModel is the GORM model for the audit_entries table.
type AuditEntryModel struct {
	ID        string               `gorm:"type:varchar(26);primaryKey"`
	Action    string               `gorm:"type:varchar(32);index;not null"`
	Album     string               `gorm:"type:varchar(64);index"`
	Key       string               `gorm:"type:varchar(1024)"`
	Detail    string               `gorm:"type:text"`
	Actor     string               `gorm:"type:varchar(64)"`
	RequestID string               `gorm:"type:varchar(64)"`
	Count     int                  `gorm:"not null;default:0"`
	Keys      database.StringArray `gorm:"type:text"`
	CreatedAt time.Time            `gorm:"autoCreateTime;index"`
}

// TableName specifies the table name for AuditEntryModel.
func (AuditEntryModel) TableName() string {
	return "audit_entries"
}

// ToDomain converts AuditEntryModel to domain AuditEntry.
func (m *AuditEntryModel) ToDomain() AuditEntry {
	return AuditEntry{
		ID:        m.ID,
		Action:    m.Action,
		Album:     m.Album,
		Key:       m.Key,
		Detail:    m.Detail,
		Actor:     m.Actor,
		RequestID: m.RequestID,
		Count:     m.Count,
		Keys:      []string(m.Keys),
		CreatedAt: m.CreatedAt,
	}
}

// AuditEntryToModel converts domain AuditEntry to AuditEntryModel.
func AuditEntryToModel(e *AuditEntry) *AuditEntryModel {
	return &AuditEntryModel{
		ID:        e.ID,
		Action:    e.Action,
		Album:     e.Album,
		Key:       e.Key,
		Detail:    e.Detail,
		Actor:     e.Actor,
		RequestID: e.RequestID,
		Count:     e.Count,
		Keys:      database.StringArray(e.Keys),
		CreatedAt: e.CreatedAt,
	}
}
