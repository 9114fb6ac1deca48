package service

import (
	"context"
	"io"
	"time"

	"github.com/andresverguilla1987/mixtli-nube/internal/domain"
)

// PresignService issues presigned URLs with clamped lifetimes.
type PresignService interface {
	PresignPut(ctx context.Context, req *domain.PresignPutRequest) (*domain.PresignResponse, error)
	// PresignGet requires accessToken when the key belongs to a protected album.
	PresignGet(ctx context.Context, req *domain.PresignGetRequest, accessToken string) (*domain.PresignResponse, error)
}

// ListingService enumerates albums and their items.
type ListingService interface {
	ListAlbums(ctx context.Context) ([]string, error)
	// ListAlbum returns the full view sorted newest first when limit and
	// pageToken are both empty, otherwise one store page.
	ListAlbum(ctx context.Context, album, accessToken string, limit int, pageToken string) (*domain.AlbumPage, error)
	ThumbnailURL(ctx context.Context, album, name, accessToken string) (*domain.ThumbnailResponse, error)
}

// AccessService guards albums with a PIN.
type AccessService interface {
	SetPin(ctx context.Context, album, pin string) error
	ClearPin(ctx context.Context, album string) error
	// CheckPin returns ErrUnauthorized for a wrong PIN and for an album without one.
	CheckPin(ctx context.Context, album, pin string) (*domain.AccessGrant, error)
	// Authorize is a no-op for public albums.
	Authorize(ctx context.Context, album, accessToken string) error
}

// TrashService moves objects to and from trash snapshots.
type TrashService interface {
	TrashAlbum(ctx context.Context, album string) (*domain.TrashResult, error)
	RestoreAlbum(ctx context.Context, album, snapshot string) (*domain.RestoreResult, error)
	ListSnapshots(ctx context.Context, album string) ([]string, error)
	DeleteItem(ctx context.Context, key string) (movedTo string, err error)
	RenameItem(ctx context.Context, from, to string) error
}

// ArchiveService streams albums as ZIP files.
type ArchiveService interface {
	// PrepareZip resolves and checks everything that can fail before the first byte.
	PrepareZip(ctx context.Context, album string, keys []string, accessToken string) (*domain.ZipPlan, error)
	WriteZip(ctx context.Context, plan *domain.ZipPlan, w io.Writer) error
}

// UploadService relays uploads and announces finished ones.
type UploadService interface {
	Upload(ctx context.Context, album, filename, contentType string, size int64, r io.Reader) (*domain.UploadResult, error)
	CompleteUpload(ctx context.Context, key string) (*domain.UploadResult, error)
}

// Thumbnailer creates a thumbnail for an item key and returns the thumbnail key.
type Thumbnailer interface {
	Ensure(ctx context.Context, key string) (string, error)
}

// Clock returns the current time. Tests swap it to pin snapshot ids.
type Clock func() time.Time
