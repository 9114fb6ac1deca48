package domain

import "time"

// PinCheckRequest carries the PIN typed by a visitor.
type PinCheckRequest struct {
	Pin string `json:"pin" binding:"required"`
}

// AccessGrant is returned when a PIN matches.
type AccessGrant struct {
	AccessToken string `json:"accessToken"`
	Exp         int64  `json:"exp"` // unix seconds
}

// SetPinRequest protects an album.
type SetPinRequest struct {
	Album string `json:"album" binding:"required"`
	Pin   string `json:"pin" binding:"required"`
}

// AlbumRequest names an album.
type AlbumRequest struct {
	Album string `json:"album" binding:"required"`
}

// RestoreRequest names an album and optionally the snapshot to restore.
// An empty Snapshot means the newest snapshot holding the album.
type RestoreRequest struct {
	Album    string `json:"album" binding:"required"`
	Snapshot string `json:"snapshot"`
}

// ItemRequest names a single object.
type ItemRequest struct {
	Key string `json:"key" binding:"required"`
}

// RenameRequest moves an object.
type RenameRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

// TrashResult is the outcome of moving an album to the trash.
type TrashResult struct {
	MovedCount int         `json:"movedCount"`
	Snapshot   string      `json:"snapshot"`
	Errors     []ItemError `json:"errors,omitempty"`
}

// RestoreResult is the outcome of restoring an album snapshot.
type RestoreResult struct {
	RestoredCount int         `json:"restoredCount"`
	Snapshot      string      `json:"snapshot"`
	Errors        []ItemError `json:"errors,omitempty"`
}

// AuditEntry is one recorded admin mutation.
type AuditEntry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Album     string    `json:"album,omitempty"`
	Key       string    `json:"key,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Actor     string    `json:"actor"`
	RequestID string    `json:"requestId,omitempty"`
	Count     int       `json:"count,omitempty"`
	Keys      []string  `json:"keys,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
