package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/andresverguilla1987/mixtli-nube/internal/domain"
	"github.com/andresverguilla1987/mixtli-nube/internal/naming"
	"github.com/andresverguilla1987/mixtli-nube/pkg/log"
	"github.com/andresverguilla1987/mixtli-nube/pkg/pubsub"
	"github.com/andresverguilla1987/mixtli-nube/pkg/storage"
)

// DefaultMaxUploadBytes is the relay limit when none is configured.
const DefaultMaxUploadBytes = 50 << 20

// uploadServiceImpl implements UploadService.
type uploadServiceImpl struct {
	store    storage.Storage
	events   pubsub.Publisher
	thumbs   Thumbnailer
	maxBytes int64
	now      Clock
}

// NewUploadService creates a new upload relay. With a no-op publisher the
// thumbnail is generated inline instead of by the worker.
func NewUploadService(store storage.Storage, events pubsub.Publisher, thumbs Thumbnailer, maxBytes int64) UploadService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if events == nil {
		events = pubsub.NopPubSub{}
	}
	return &uploadServiceImpl{
		store:    store,
		events:   events,
		thumbs:   thumbs,
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

// Upload writes r to the album, or to a dated transfer key when album is empty.
func (s *uploadServiceImpl) Upload(ctx context.Context, album, filename, contentType string, size int64, r io.Reader) (*domain.UploadResult, error) {
	l := log.Ctx(ctx)

	if size > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, size, s.maxBytes)
	}

	var key string
	if album != "" {
		if err := checkAlbum(album); err != nil {
			return nil, err
		}
		k, err := naming.ItemKey(album, naming.SanitizeFilename(filename))
		if err != nil {
			return nil, invalid(err)
		}
		key = k
	} else {
		k, err := transferKey(s.now(), filename)
		if err != nil {
			return nil, err
		}
		key = k
	}
	if naming.IsSentinel(key) {
		return nil, invalidf("%s is a reserved name", filename)
	}

	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFor(key)
	}

	if err := s.store.Write(ctx, key, &capReader{r: r, left: s.maxBytes}, size, contentType); err != nil {
		l.Error().Err(err).Str(log.FieldKey, key).Msg("failed to store upload")
		return nil, err
	}

	result := &domain.UploadResult{Key: key, Size: size, ContentType: contentType}
	s.announce(ctx, result)
	return result, nil
}

// CompleteUpload announces an object uploaded directly to the store.
func (s *uploadServiceImpl) CompleteUpload(ctx context.Context, key string) (*domain.UploadResult, error) {
	if strings.HasPrefix(key, naming.UploadsPrefix) {
		if err := naming.ValidateName(strings.TrimPrefix(key, naming.UploadsPrefix)); err != nil {
			return nil, invalid(err)
		}
	} else if _, _, err := parseItem(key); err != nil {
		return nil, err
	}

	info, err := s.store.Stat(ctx, key)
	if err != nil {
		return nil, notFound(err, key)
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = contentTypeFor(key)
	}
	result := &domain.UploadResult{Key: key, Size: info.Size, ContentType: contentType}
	s.announce(ctx, result)
	return result, nil
}

// announce tells the thumbnail worker about an album image. Failures are
// logged only; the object is already stored.
func (s *uploadServiceImpl) announce(ctx context.Context, res *domain.UploadResult) {
	album := naming.AlbumFromKey(res.Key)
	if album == "" || !naming.IsImage(res.Key) {
		return
	}
	l := log.Ctx(log.WithAlbum(ctx, album))

	if pubsub.IsNop(s.events) {
		if s.thumbs == nil {
			return
		}
		if _, err := s.thumbs.Ensure(ctx, res.Key); err != nil {
			l.Warn().Err(err).Str(log.FieldKey, res.Key).Msg("inline thumbnail failed")
		}
		return
	}

	event, err := pubsub.NewEvent(pubsub.EventUploadCompleted, album, pubsub.UploadCompletedPayload{
		Key:         res.Key,
		Size:        res.Size,
		ContentType: res.ContentType,
	})
	if err != nil {
		l.Error().Err(err).Msg("failed to build upload event")
		return
	}
	if err := s.events.Publish(ctx, pubsub.AlbumUploadsChannel(album), event); err != nil {
		l.Warn().Err(err).Str(log.FieldKey, res.Key).Msg("failed to publish upload event")
	}
}

// capReader fails with ErrTooLarge once more than left bytes were read.
type capReader struct {
	r    io.Reader
	left int64
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.left < 0 {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > c.left+1 {
		p = p[:c.left+1]
	}
	n, err := c.r.Read(p)
	c.left -= int64(n)
	if c.left < 0 {
		return n, ErrTooLarge
	}
	return n, err
}
