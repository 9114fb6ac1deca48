package naming

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAlbum(t *testing.T) {
	valid := []string{"trip", "Trip-2024", "a", "x.y_z", strings.Repeat("a", 64)}
	for _, a := range valid {
		assert.NoError(t, ValidateAlbum(a), a)
	}

	invalid := []string{"", "-trip", ".hidden", "a/b", "a..b", "con fig", strings.Repeat("a", 65), "ñandú"}
	for _, a := range invalid {
		assert.ErrorIs(t, ValidateAlbum(a), ErrInvalidAlbum, a)
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"a.jpg", "sub/a.jpg", "día de muertos.png", "x..y.txt"}
	for _, n := range valid {
		assert.NoError(t, ValidateName(n), n)
	}

	invalid := []string{"", "/a.jpg", "a/", "a//b", "../a", "a/./b", "a\x00b", "tab\there"}
	for _, n := range invalid {
		assert.ErrorIs(t, ValidateName(n), ErrInvalidName, n)
	}
}

func TestItemKeyRoundTrip(t *testing.T) {
	key, err := ItemKey("trip", "sub/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "albums/trip/sub/a.jpg", key)

	album, name, err := ParseItemKey(key)
	require.NoError(t, err)
	assert.Equal(t, "trip", album)
	assert.Equal(t, "sub/a.jpg", name)
	assert.Equal(t, "trip", AlbumFromKey(key))
	assert.Equal(t, "sub/a.jpg", RelativeName("trip", key))

	_, _, err = ParseItemKey("uploads/2024-01-01/x.jpg")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, _, err = ParseItemKey("albums/trip")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.Empty(t, AlbumFromKey("thumbs/trip/a.jpg"))

	_, err = ItemKey("trip", strings.Repeat("a", 1100))
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestThumbKey(t *testing.T) {
	assert.Equal(t, "thumbs/trip/a.jpg", ThumbKey("trip", "a.png"))
	assert.Equal(t, "thumbs/trip/sub/b.jpg", ThumbKey("trip", "sub/b.jpeg"))
	assert.Equal(t, "thumbs/trip/noext.jpg", ThumbKey("trip", "noext"))

	k, err := ThumbKeyForItem("albums/trip/a.png")
	require.NoError(t, err)
	assert.Equal(t, "thumbs/trip/a.jpg", k)
}

func TestPinKey(t *testing.T) {
	assert.Equal(t, "meta/albums/private.pin", PinKey("private"))
	assert.True(t, IsSentinel(PinKey("private")))
}

func TestSnapshotKeys(t *testing.T) {
	ts := SnapshotID(time.Date(2024, 3, 9, 17, 4, 5, 123_000_000, time.FixedZone("CST", -6*3600)))
	assert.Equal(t, "2024-03-09T23:04:05.123Z", ts)
	assert.True(t, ValidSnapshot(ts))
	assert.False(t, ValidSnapshot("2024-03-09"))
	assert.False(t, ValidSnapshot("../../etc"))

	tk := TrashKey(ts, "albums/trip/a.jpg")
	assert.Equal(t, "trash/2024-03-09T23:04:05.123Z/albums/trip/a.jpg", tk)
	assert.Equal(t, "albums/trip/a.jpg", OriginalKey(ts, tk))
	assert.Equal(t, "trash/2024-03-09T23:04:05.123Z/albums/trip/", SnapshotAlbumPrefix(ts, "trip"))
	assert.Equal(t, ts, SnapshotFromPrefix(SnapshotPrefix(ts)))
	assert.Equal(t, "trip", AlbumFromPrefix(AlbumPrefix("trip")))

	// Lexical order is chronological.
	earlier := SnapshotID(time.Date(2024, 3, 9, 23, 4, 5, 0, time.UTC))
	assert.Less(t, earlier, ts)
}

func TestTransferKey(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	key, err := TransferKey(now, "abc123", "mi foto.jpg")
	require.NoError(t, err)
	assert.Equal(t, "uploads/2024-01-02/abc123-mi_foto.jpg", key)

	_, err = TransferKey(now, "abc123", "")
	assert.Error(t, err)
}

func TestIsSentinel(t *testing.T) {
	sentinels := []string{
		"meta/albums/x.pin", "albums/trip/secret.pin", "albums/trip/_manifest.json",
		"albums/trip/.keep", "albums/trip/sub/",
	}
	for _, k := range sentinels {
		assert.True(t, IsSentinel(k), k)
	}
	for _, k := range []string{"albums/trip/a.jpg", "albums/trip/pin.txt", "albums/trip/keep"} {
		assert.False(t, IsSentinel(k), k)
	}
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("albums/a/x.JPG"))
	assert.True(t, IsImage("albums/a/x.png"))
	assert.False(t, IsImage("albums/a/x.mp4"))
	assert.False(t, IsImage("albums/a/x"))
}
