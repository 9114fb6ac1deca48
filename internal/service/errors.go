package service

import (
	"errors"
	"fmt"

	"github.com/andresverguilla1987/mixtli-nube/internal/domain"
	"github.com/andresverguilla1987/mixtli-nube/internal/naming"
	"github.com/andresverguilla1987/mixtli-nube/pkg/storage"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("already exists")
	ErrTooLarge       = errors.New("payload too large")
)

// invalid wraps err (usually a naming error) as ErrInvalidRequest.
func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
}

// invalidf builds an ErrInvalidRequest with a message.
func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// checkAlbum validates an album name.
func checkAlbum(album string) error {
	if err := naming.ValidateAlbum(album); err != nil {
		return invalid(err)
	}
	return nil
}

// parseItem validates an album item key.
func parseItem(key string) (album, name string, err error) {
	album, name, err = naming.ParseItemKey(key)
	if err != nil {
		return "", "", invalid(err)
	}
	return album, name, nil
}

// notFound maps a missing store object onto ErrNotFound, leaving other errors untouched.
func notFound(err error, what string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

// itemError converts err on key into a batch error entry.
func itemError(key string, err error) domain.ItemError {
	code := "InternalError"
	switch {
	case errors.Is(err, storage.ErrNotFound):
		code = "NotFound"
	case errors.Is(err, storage.ErrAccessDenied):
		code = "AccessDenied"
	case errors.Is(err, storage.ErrUnavailable):
		code = "Unavailable"
	}
	return domain.ItemError{Key: key, Code: code, Message: err.Error()}
}
