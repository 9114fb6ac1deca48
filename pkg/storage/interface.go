package storage

import (
	"context"
	"io"
	"time"
)

// MaxBatchDelete is the largest number of keys a single batch delete call may carry.
const MaxBatchDelete = 1000

// FileInfo represents metadata about a stored object.
type FileInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// ListOptions selects a single page of a listing.
type ListOptions struct {
	Prefix    string
	Delimiter string
	// Token is the opaque continuation token returned by a previous page.
	Token string
	// Limit caps objects plus common prefixes returned. Zero means the backend default (1000).
	Limit int
}

// ListPage is one page of a listing.
type ListPage struct {
	Objects   []FileInfo
	Prefixes  []string
	NextToken string
}

// DeleteError describes a key the store refused to delete.
type DeleteError struct {
	Key     string
	Code    string
	Message string
}

// DeleteResult is the outcome of DeleteMany. Every requested key ends up in exactly one of the two slices.
type DeleteResult struct {
	Deleted []string
	Errors  []DeleteError
}

// Storage defines the interface for object storage operations.
type Storage interface {
	// Write stores content from the reader with the given key.
	// The size parameter is the expected content size (-1 if unknown).
	// The contentType parameter specifies the MIME type of the content.
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Read retrieves content for the given key.
	// The caller is responsible for closing the returned ReadCloser.
	Read(ctx context.Context, key string) (io.ReadCloser, error)

	// Stat returns metadata for the given key, ErrNotFound if it is missing.
	Stat(ctx context.Context, key string) (*FileInfo, error)

	// Exists checks if content with the given key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// ListPage returns a single page of keys and common prefixes.
	ListPage(ctx context.Context, opts ListOptions) (*ListPage, error)

	// List returns information about all objects with keys starting with the given prefix.
	List(ctx context.Context, prefix string) ([]FileInfo, error)

	// Copy duplicates srcKey to dstKey inside the bucket.
	Copy(ctx context.Context, srcKey, dstKey string) error

	// Delete removes the content with the given key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all content with keys starting with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// DeleteMany removes the keys in batches of at most MaxBatchDelete.
	DeleteMany(ctx context.Context, keys []string) (*DeleteResult, error)
}

// Presigner hands out time-limited URLs that let a browser talk to the store directly.
// Signing is local; no request is sent.
type Presigner interface {
	GetURL(ctx context.Context, key string, expires time.Duration) (string, error)
	GetUploadURL(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
}
