// Package naming holds the bucket key layout: albums, thumbnails, trash
// snapshots and PIN sentinels. Everything here is pure string work.
package naming

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"
)

const (
	AlbumsPrefix  = "albums/"
	ThumbsPrefix  = "thumbs/"
	TrashPrefix   = "trash/"
	MetaPrefix    = "meta/"
	UploadsPrefix = "uploads/"

	pinSuffix = ".pin"

	// SnapshotLayout is the UTC timestamp used for trash snapshots. Fixed width,
	// so lexical order is chronological.
	SnapshotLayout = "2006-01-02T15:04:05.000Z"

	maxKeyBytes = 1024
)

var (
	ErrInvalidAlbum = errors.New("invalid album name")
	ErrInvalidName  = errors.New("invalid item name")
	ErrInvalidKey   = errors.New("key does not belong to an album")

	albumRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)
)

// ValidateAlbum checks an album name.
func ValidateAlbum(album string) error {
	if !albumRe.MatchString(album) || strings.Contains(album, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidAlbum, album)
	}
	return nil
}

// ValidateName checks an item name relative to its album. Sub-folders are
// allowed; empty, "." and ".." segments and control characters are not.
func ValidateName(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	for _, r := range name {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}

// AlbumPrefix returns "albums/<album>/".
func AlbumPrefix(album string) string {
	return AlbumsPrefix + album + "/"
}

// ItemKey builds and validates "albums/<album>/<name>".
func ItemKey(album, name string) (string, error) {
	if err := ValidateAlbum(album); err != nil {
		return "", err
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	key := AlbumPrefix(album) + name
	if len(key) > maxKeyBytes {
		return "", fmt.Errorf("%w: key longer than %d bytes", ErrInvalidName, maxKeyBytes)
	}
	return key, nil
}

// ParseItemKey splits an album item key into album and name.
func ParseItemKey(key string) (album, name string, err error) {
	rest, ok := strings.CutPrefix(key, AlbumsPrefix)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	album, name, ok = strings.Cut(rest, "/")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if _, err := ItemKey(album, name); err != nil {
		return "", "", err
	}
	return album, name, nil
}

// AlbumFromKey returns the album of an item key, or "" if key is not one.
func AlbumFromKey(key string) string {
	album, _, err := ParseItemKey(key)
	if err != nil {
		return ""
	}
	return album
}

// RelativeName strips "albums/<album>/" from key.
func RelativeName(album, key string) string {
	return strings.TrimPrefix(key, AlbumPrefix(album))
}

// ThumbPrefix returns "thumbs/<album>/".
func ThumbPrefix(album string) string {
	return ThumbsPrefix + album + "/"
}

// ThumbKey maps an item to its JPEG thumbnail. The extension is dropped, so
// "a.png" and "a.jpg" in the same folder share one thumbnail.
func ThumbKey(album, name string) string {
	base := strings.TrimSuffix(name, path.Ext(name))
	return ThumbPrefix(album) + base + ".jpg"
}

// ThumbKeyForItem maps an item key to its thumbnail key.
func ThumbKeyForItem(key string) (string, error) {
	album, name, err := ParseItemKey(key)
	if err != nil {
		return "", err
	}
	return ThumbKey(album, name), nil
}

// PinKey returns the PIN sentinel key "meta/albums/<album>.pin".
func PinKey(album string) string {
	return MetaPrefix + AlbumsPrefix + album + pinSuffix
}

// SnapshotID formats t as a trash snapshot id.
func SnapshotID(t time.Time) string {
	return t.UTC().Format(SnapshotLayout)
}

// ValidSnapshot reports whether id looks like a snapshot id.
func ValidSnapshot(id string) bool {
	_, err := time.Parse(SnapshotLayout, id)
	return err == nil && len(id) == len(SnapshotLayout)
}

// SnapshotPrefix returns "trash/<ts>/".
func SnapshotPrefix(ts string) string {
	return TrashPrefix + ts + "/"
}

// TrashKey returns "trash/<ts>/<key>".
func TrashKey(ts, key string) string {
	return SnapshotPrefix(ts) + key
}

// SnapshotAlbumPrefix returns "trash/<ts>/albums/<album>/".
func SnapshotAlbumPrefix(ts, album string) string {
	return SnapshotPrefix(ts) + AlbumPrefix(album)
}

// OriginalKey strips "trash/<ts>/" from a trashed key.
func OriginalKey(ts, trashKey string) string {
	return strings.TrimPrefix(trashKey, SnapshotPrefix(ts))
}

// SnapshotFromPrefix extracts <ts> from a "trash/<ts>/" common prefix.
func SnapshotFromPrefix(prefix string) string {
	return strings.TrimSuffix(strings.TrimPrefix(prefix, TrashPrefix), "/")
}

// AlbumFromPrefix extracts <album> from an "albums/<album>/" common prefix.
func AlbumFromPrefix(prefix string) string {
	return strings.TrimSuffix(strings.TrimPrefix(prefix, AlbumsPrefix), "/")
}

// TransferKey builds the album-less upload key "uploads/<yyyy-mm-dd>/<rid>-<filename>".
func TransferKey(now time.Time, rid, filename string) (string, error) {
	if err := ValidateName(filename); err != nil {
		return "", err
	}
	key := UploadsPrefix + now.UTC().Format("2006-01-02") + "/" + rid + "-" + SanitizeFilename(filename)
	if len(key) > maxKeyBytes {
		return "", fmt.Errorf("%w: key longer than %d bytes", ErrInvalidName, maxKeyBytes)
	}
	return key, nil
}

// SanitizeFilename keeps the base name and replaces characters browsers and
// shells choke on.
func SanitizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	return strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case unicode.IsControl(r), strings.ContainsRune(`"'<>|?*:`, r):
			return -1
		}
		return r
	}, base)
}

// IsSentinel reports whether key is bookkeeping rather than user content:
// anything under meta/, PIN files, manifests, .keep markers and folder markers.
func IsSentinel(key string) bool {
	if strings.HasPrefix(key, MetaPrefix) || strings.HasSuffix(key, "/") {
		return true
	}
	base := path.Base(key)
	return strings.HasSuffix(base, pinSuffix) || base == "_manifest.json" || base == ".keep"
}

// IsImage reports whether the extension is one the thumbnailer can decode.
func IsImage(key string) bool {
	switch strings.ToLower(path.Ext(key)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}
