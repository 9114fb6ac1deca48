package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestS3(t *testing.T, publicURL string) *S3Storage {
	t.Helper()
	s, err := NewS3Storage(context.Background(), S3Config{
		Endpoint:        "https://s3.internal.example.com",
		Region:          "us-east-1",
		Bucket:          "mixtli",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		UsePathStyle:    true,
		PublicURL:       publicURL,
	})
	require.NoError(t, err)
	return s
}

func TestS3Storage_PresignUpload(t *testing.T) {
	t.Parallel()
	s := newTestS3(t, "")

	raw, err := s.GetUploadURL(context.Background(), "albums/trip/a b.jpg", "image/jpeg", 5*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "s3.internal.example.com", u.Host)
	assert.True(t, strings.HasPrefix(u.Path, "/mixtli/albums/trip/"))
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestS3Storage_PresignUsesPublicEndpoint(t *testing.T) {
	t.Parallel()
	s := newTestS3(t, "https://files.example.com")

	raw, err := s.GetURL(context.Background(), "albums/trip/a.jpg", 7*24*time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "files.example.com", u.Host)
	assert.Equal(t, "604800", u.Query().Get("X-Amz-Expires"))
}

func TestCopySource(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "mixtli/albums/trip/a%20b.jpg", copySource("mixtli", "albums/trip/a b.jpg"))
	assert.Equal(t, "mixtli/albums/trip/%C3%B1.jpg", copySource("mixtli", "albums/trip/ñ.jpg"))
}

func TestS3Config_Defaults(t *testing.T) {
	t.Parallel()
	cfg := S3Config{DeleteBatchSize: 5000}
	cfg.setDefaults()
	assert.Equal(t, "auto", cfg.Region)
	assert.Equal(t, MaxBatchDelete, cfg.DeleteBatchSize)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Positive(t, cfg.OperationTimeout)
}
