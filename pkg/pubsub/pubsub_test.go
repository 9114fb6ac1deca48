package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelToTopicAndKey(t *testing.T) {
	topic, key, err := channelToTopicAndKey(AlbumUploadsChannel("trip"))
	require.NoError(t, err)
	assert.Equal(t, "mixtli-uploads", topic)
	assert.Equal(t, "trip", key)

	topic, err = patternToTopic(PatternAlbumUploads)
	require.NoError(t, err)
	assert.Equal(t, "mixtli-uploads", topic)

	_, _, err = channelToTopicAndKey("signal:room:1:to_media")
	assert.Error(t, err)
	_, _, err = channelToTopicAndKey("mixtli:album::uploads")
	assert.Error(t, err)
}

func TestNewPubSub_Drivers(t *testing.T) {
	ps, err := NewPubSub(Config{Driver: DriverNone})
	require.NoError(t, err)
	assert.True(t, IsNop(ps))
	assert.NoError(t, ps.Publish(context.Background(), AlbumUploadsChannel("a"), &Event{}))
	_, err = ps.SubscribePattern(context.Background(), PatternAlbumUploads)
	assert.ErrorIs(t, err, ErrNoBus)

	_, err = NewPubSub(Config{Driver: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestRedisPubSub_PatternRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := DefaultConfig().Redis
	cfg.Address = mr.Addr()
	ps, err := NewRedisPubSub(cfg)
	require.NoError(t, err)
	defer ps.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := ps.SubscribePattern(ctx, PatternAlbumUploads)
	require.NoError(t, err)

	// Wait until the pattern subscription is registered before publishing.
	require.Eventually(t, func() bool {
		return mr.PubSubNumPat() > 0
	}, time.Second, 10*time.Millisecond)

	evt, err := NewEvent(EventUploadCompleted, "trip", UploadCompletedPayload{Key: "albums/trip/a.jpg", Size: 3})
	require.NoError(t, err)

	require.NoError(t, ps.Publish(ctx, AlbumUploadsChannel("trip"), evt))

	var got *Event
	select {
	case got = <-events:
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
	require.NotNil(t, got)
	assert.Equal(t, EventUploadCompleted, got.Type)
	assert.Equal(t, "trip", got.Album)
	assert.Equal(t, evt.ID, got.ID)
	assert.Len(t, got.ID, 26)

	var payload UploadCompletedPayload
	require.NoError(t, got.UnmarshalPayload(&payload))
	assert.Equal(t, "albums/trip/a.jpg", payload.Key)
	assert.Equal(t, int64(3), payload.Size)
}

func TestGroupSafe(t *testing.T) {
	assert.Equal(t, "mixtli-thumbnailer-trip_2024", groupSafe("mixtli-thumbnailer-trip_2024"))
	assert.Equal(t, "a-b-c", groupSafe("a:b c"))
}

func TestEvent_UnmarshalPayloadError(t *testing.T) {
	evt := &Event{Type: EventUploadCompleted, Payload: []byte(`"not an object"`)}
	var payload UploadCompletedPayload
	err := evt.UnmarshalPayload(&payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), EventUploadCompleted)
}
