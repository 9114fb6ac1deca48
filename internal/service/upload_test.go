package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresverguilla1987/mixtli-nube/pkg/pubsub"
)

type capturePublisher struct {
	mu       sync.Mutex
	channels []string
	events   []*pubsub.Event
}

func (p *capturePublisher) Publish(_ context.Context, channel string, event *pubsub.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	p.events = append(p.events, event)
	return nil
}

func TestUpload_InlineThumbnailWithoutBus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := NewUploadService(env.store, pubsub.NopPubSub{}, env.thumbs, 0)

	res, err := svc.Upload(ctx, "trip", "beach.jpg", "", 5, strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "albums/trip/beach.jpg", res.Key)
	assert.Equal(t, "image/jpeg", res.ContentType)
	assert.Equal(t, "hello", env.read(t, res.Key))
	assert.Equal(t, []string{"albums/trip/beach.jpg"}, env.thumbs.keys)

	_, err = svc.Upload(ctx, "trip", "notes.txt", "text/plain", 1, strings.NewReader("n"))
	require.NoError(t, err)
	assert.Len(t, env.thumbs.keys, 1)
}

func TestUpload_PublishesEvent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	pub := &capturePublisher{}
	svc := NewUploadService(env.store, pub, env.thumbs, 0)

	_, err := svc.Upload(ctx, "trip", "a.png", "image/png", 3, strings.NewReader("png"))
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "mixtli:album:trip:uploads", pub.channels[0])
	assert.Equal(t, pubsub.EventUploadCompleted, pub.events[0].Type)
	assert.Equal(t, "trip", pub.events[0].Album)

	var payload pubsub.UploadCompletedPayload
	require.NoError(t, pub.events[0].UnmarshalPayload(&payload))
	assert.Equal(t, "albums/trip/a.png", payload.Key)
	assert.Equal(t, int64(3), payload.Size)
	assert.Empty(t, env.thumbs.keys)
}

func TestUpload_TransferAndLimits(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := NewUploadService(env.store, nil, nil, 4)

	res, err := svc.Upload(ctx, "", "doc.pdf", "", 3, strings.NewReader("pdf"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Key, "uploads/"))
	assert.Equal(t, "application/pdf", res.ContentType)

	_, err = svc.Upload(ctx, "trip", "big.jpg", "", 10, strings.NewReader("0123456789"))
	assert.ErrorIs(t, err, ErrTooLarge)

	// A lying size is caught while streaming and nothing is stored.
	_, err = svc.Upload(ctx, "trip", "liar.jpg", "", -1, strings.NewReader("0123456789"))
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Empty(t, env.keys(t, "albums/trip/"))

	_, err = svc.Upload(ctx, "bad/album", "a.jpg", "", 1, strings.NewReader("a"))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Upload(ctx, "trip", ".keep", "", 1, strings.NewReader("a"))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCompleteUpload(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	pub := &capturePublisher{}
	svc := NewUploadService(env.store, pub, nil, 0)
	env.put(t, "albums/trip/a.jpg", "abc")

	res, err := svc.CompleteUpload(ctx, "albums/trip/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Size)
	assert.Len(t, pub.events, 1)

	_, err = svc.CompleteUpload(ctx, "albums/trip/missing.jpg")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.CompleteUpload(ctx, "meta/albums/trip.pin")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	env.put(t, "uploads/2024-01-01/abc-x.bin", "x")
	_, err = svc.CompleteUpload(ctx, "uploads/2024-01-01/abc-x.bin")
	require.NoError(t, err)
	assert.Len(t, pub.events, 1)
}
