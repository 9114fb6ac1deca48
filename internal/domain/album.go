package domain

import (
	"time"
)

// Item is one object inside an album.
type Item struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// AlbumPage is a listing of album items. NextToken is empty on the last page.
type AlbumPage struct {
	Album     string `json:"album"`
	Items     []Item `json:"items"`
	NextToken string `json:"nextToken,omitempty"`
}

// ItemError reports a key a batch operation could not process.
type ItemError struct {
	Key     string `json:"key"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// PresignPutRequest asks for a browser upload URL. Either Key or Filename is required.
type PresignPutRequest struct {
	Key         string `json:"key"`
	Filename    string `json:"filename"`
	Album       string `json:"album"`
	ContentType string `json:"contentType"`
	ExpiresIn   int    `json:"expiresIn"` // seconds
}

// PresignGetRequest asks for a download URL.
type PresignGetRequest struct {
	Key       string `json:"key" binding:"required"`
	ExpiresIn int    `json:"expiresIn"` // seconds
}

// PresignResponse carries a presigned URL.
type PresignResponse struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expiresIn"`
}

// UploadResult describes an object written through the relay.
type UploadResult struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// CompleteUploadRequest announces a finished browser upload.
type CompleteUploadRequest struct {
	Key string `json:"key" binding:"required"`
}

// ThumbnailResponse carries a presigned URL to a thumbnail.
type ThumbnailResponse struct {
	Key       string `json:"key"`
	URL       string `json:"url"`
	ExpiresIn int    `json:"expiresIn"`
}

// ZipRequest optionally restricts an archive to some keys or names.
type ZipRequest struct {
	Keys []string `json:"keys"`
}

// ZipEntry is one object placed in an archive under Name.
type ZipEntry struct {
	Key          string
	Name         string
	Size         int64
	LastModified time.Time
}

// ZipPlan is the resolved, access-checked content of an archive.
type ZipPlan struct {
	Album   string
	Entries []ZipEntry
}

// Filename is the attachment name offered to the browser.
func (p *ZipPlan) Filename() string {
	return p.Album + ".zip"
}
