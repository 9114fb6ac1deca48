package thumbnail

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresverguilla1987/mixtli-nube/pkg/log"
	"github.com/andresverguilla1987/mixtli-nube/pkg/pubsub"
	"github.com/andresverguilla1987/mixtli-nube/pkg/storage"
)

// Ensurer is the part of Generator the worker needs.
type Ensurer interface {
	Ensure(ctx context.Context, key string) (string, error)
}

// Worker renders thumbnails for upload events.
type Worker struct {
	events pubsub.Subscriber
	thumbs Ensurer
}

// NewWorker creates a worker reading upload events from events.
func NewWorker(events pubsub.Subscriber, thumbs Ensurer) *Worker {
	return &Worker{events: events, thumbs: thumbs}
}

// Run consumes upload events until ctx is done. Events are handled one at a
// time; a failed event is logged and skipped.
func (w *Worker) Run(ctx context.Context) error {
	ch, err := w.events.SubscribePattern(ctx, pubsub.PatternAlbumUploads)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", pubsub.PatternAlbumUploads, err)
	}

	l := log.L()
	l.Info().Str("pattern", pubsub.PatternAlbumUploads).Msg("thumbnail worker started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			w.Handle(ctx, event)
		}
	}
}

// Handle processes a single event.
func (w *Worker) Handle(ctx context.Context, event *pubsub.Event) {
	l := log.Ctx(log.WithAlbum(ctx, event.Album))

	if event.Type != pubsub.EventUploadCompleted {
		l.Debug().Str("type", event.Type).Msg("ignoring event")
		return
	}

	var payload pubsub.UploadCompletedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		l.Warn().Err(err).Msg("malformed upload event")
		return
	}

	thumbKey, err := w.thumbs.Ensure(ctx, payload.Key)
	switch {
	case err == nil:
		l.Info().Str(log.FieldKey, payload.Key).Str("thumb", thumbKey).Msg("thumbnail ready")
	case errors.Is(err, ErrNotImage), errors.Is(err, storage.ErrNotFound):
		l.Debug().Err(err).Str(log.FieldKey, payload.Key).Msg("skipping upload")
	default:
		l.Error().Err(err).Str(log.FieldKey, payload.Key).Msg("thumbnail failed")
	}
}
