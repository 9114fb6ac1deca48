package pubsub

import (
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Channel naming conventions for album events.
const (
	// Gateway -> thumbnailer channels
	ChannelAlbumUploads = "mixtli:album:%s:uploads"

	// PatternAlbumUploads matches the upload channel of every album.
	PatternAlbumUploads = "mixtli:album:*:uploads"
)

// Event types published by the gateway.
const (
	EventUploadCompleted = "upload.completed"
)

// AlbumUploadsChannel returns the channel name for upload events of an album.
func AlbumUploadsChannel(album string) string {
	return fmt.Sprintf(ChannelAlbumUploads, album)
}

// UploadCompletedPayload is sent when an object landed in an album.
type UploadCompletedPayload struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

// channelToTopicAndKey converts a channel to a Kafka topic and message key.
//
//	"mixtli:album:trip:uploads" → topic: "mixtli-uploads", key: "trip"
func channelToTopicAndKey(channel string) (topic, key string, err error) {
	// Expected format: {prefix}:album:{album}:{stream}
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[1] != "album" || parts[2] == "" {
		return "", "", fmt.Errorf("invalid channel format: %s", channel)
	}

	topic = parts[0] + "-" + parts[3]
	return topic, parts[2], nil
}

// patternToTopic converts a subscribe pattern to a Kafka topic.
//
//	"mixtli:album:*:uploads" → "mixtli-uploads"
func patternToTopic(pattern string) (string, error) {
	// Replace wildcard with a placeholder, reuse channelToTopicAndKey
	channel := strings.ReplaceAll(pattern, "*", "_placeholder_")
	topic, _, err := channelToTopicAndKey(channel)
	return topic, err
}

// newEventID returns a time-ordered event ID.
func newEventID() string {
	return ulid.Make().String()
}
