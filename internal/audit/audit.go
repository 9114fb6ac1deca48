package audit

import (
	"context"
	"errors"

	"github.com/andresverguilla1987/mixtli-nube/internal/domain"
	"github.com/andresverguilla1987/mixtli-nube/pkg/log"
)

// Audit actions for admin mutations.
const (
	ActionPinSet       = "pin.set"
	ActionPinClear     = "pin.clear"
	ActionItemDelete   = "item.delete"
	ActionItemRename   = "item.rename"
	ActionAlbumTrash   = "album.trash"
	ActionAlbumRestore = "album.restore"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// ErrDisabled is returned by List when no audit store is configured.
var ErrDisabled = errors.New("audit store disabled")

// Recorder receives audit entries. Recording never fails the caller.
type Recorder interface {
	Record(ctx context.Context, e domain.AuditEntry)
	List(ctx context.Context, album string, limit int) ([]domain.AuditEntry, error)
}

type metaKey struct{}

type meta struct {
	actor     string
	requestID string
}

// WithActor tags ctx with who is acting and the request id.
func WithActor(ctx context.Context, actor, requestID string) context.Context {
	return context.WithValue(ctx, metaKey{}, meta{actor: actor, requestID: requestID})
}

// fill copies actor and request id from ctx into e when unset.
func fill(ctx context.Context, e *domain.AuditEntry) {
	m, _ := ctx.Value(metaKey{}).(meta)
	if e.Actor == "" {
		e.Actor = m.actor
	}
	if e.Actor == "" {
		e.Actor = "system"
	}
	if e.RequestID == "" {
		e.RequestID = m.requestID
	}
}

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, e domain.AuditEntry, msg string) {
	fill(ctx, &e)

	l := log.Ctx(ctx)
	evt := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, e.Action).
		Str(log.FieldActor, e.Actor)
	if e.Album != "" {
		evt = evt.Str(log.FieldAlbum, e.Album)
	}
	if e.Key != "" {
		evt = evt.Str(log.FieldKey, e.Key)
	}
	if e.Detail != "" {
		evt = evt.Str(FieldDetail, e.Detail)
	}
	if e.Count > 0 {
		evt = evt.Int(log.FieldCount, e.Count)
	}
	evt.Msg(msg)
}

// LogRecorder only writes audit lines to the log.
type LogRecorder struct{}

// NewLogRecorder creates a log-only recorder.
func NewLogRecorder() *LogRecorder {
	return &LogRecorder{}
}

func (LogRecorder) Record(ctx context.Context, e domain.AuditEntry) {
	Log(ctx, e, "audit")
}

func (LogRecorder) List(context.Context, string, int) ([]domain.AuditEntry, error) {
	return nil, ErrDisabled
}
