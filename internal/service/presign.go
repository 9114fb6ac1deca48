package service

import (
	"context"
	"mime"
	"path"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/andresverguilla1987/mixtli-nube/internal/domain"
	"github.com/andresverguilla1987/mixtli-nube/internal/naming"
	"github.com/andresverguilla1987/mixtli-nube/pkg/log"
	"github.com/andresverguilla1987/mixtli-nube/pkg/storage"
)

// TTLRange is a default lifetime and the bounds requests are clamped to.
type TTLRange struct {
	Default time.Duration
	Min     time.Duration
	Max     time.Duration
}

// Clamp resolves a requested lifetime in seconds. Zero or negative means default.
func (r TTLRange) Clamp(seconds int) time.Duration {
	ttl := r.Default
	if seconds > 0 {
		ttl = time.Duration(seconds) * time.Second
	}
	if ttl < r.Min {
		ttl = r.Min
	}
	if ttl > r.Max {
		ttl = r.Max
	}
	return ttl
}

// PresignOptions holds the upload and download lifetimes.
type PresignOptions struct {
	Upload   TTLRange
	Download TTLRange
}

// DefaultPresignOptions returns 5 minutes for uploads and 7 days for downloads.
func DefaultPresignOptions() PresignOptions {
	return PresignOptions{
		Upload:   TTLRange{Default: 5 * time.Minute, Min: time.Minute, Max: time.Hour},
		Download: TTLRange{Default: 7 * 24 * time.Hour, Min: time.Minute, Max: 7 * 24 * time.Hour},
	}
}

// presignServiceImpl implements PresignService.
type presignServiceImpl struct {
	presigner storage.Presigner
	access    AccessService
	opts      PresignOptions
	now       Clock
}

// NewPresignService creates a new presign broker.
func NewPresignService(presigner storage.Presigner, access AccessService, opts PresignOptions) PresignService {
	return &presignServiceImpl{
		presigner: presigner,
		access:    access,
		opts:      opts,
		now:       time.Now,
	}
}

// PresignPut issues an upload URL for an album item or a dated transfer key.
func (s *presignServiceImpl) PresignPut(ctx context.Context, req *domain.PresignPutRequest) (*domain.PresignResponse, error) {
	l := log.Ctx(ctx)

	key, err := s.resolvePutKey(req)
	if err != nil {
		return nil, err
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = contentTypeFor(key)
	}

	ttl := s.opts.Upload.Clamp(req.ExpiresIn)
	url, err := s.presigner.GetUploadURL(ctx, key, contentType, ttl)
	if err != nil {
		l.Error().Err(err).Str(log.FieldKey, key).Msg("failed to presign upload")
		return nil, err
	}

	return &domain.PresignResponse{URL: url, Key: key, ExpiresIn: int(ttl / time.Second)}, nil
}

func (s *presignServiceImpl) resolvePutKey(req *domain.PresignPutRequest) (string, error) {
	if req.Key != "" {
		if _, _, err := parseItem(req.Key); err != nil {
			return "", err
		}
		if naming.IsSentinel(req.Key) {
			return "", invalidf("%s is a reserved name", req.Key)
		}
		return req.Key, nil
	}

	if req.Filename == "" {
		return "", invalidf("key or filename is required")
	}

	if req.Album != "" {
		key, err := naming.ItemKey(req.Album, req.Filename)
		if err != nil {
			return "", invalid(err)
		}
		if naming.IsSentinel(key) {
			return "", invalidf("%s is a reserved name", req.Filename)
		}
		return key, nil
	}

	return transferKey(s.now(), req.Filename)
}

// ridAlphabet keeps transfer ids lowercase hex.
const ridAlphabet = "0123456789abcdef"

// transferKey builds a dated upload key with a random 12-character id.
func transferKey(now time.Time, filename string) (string, error) {
	rid, err := gonanoid.Generate(ridAlphabet, 12)
	if err != nil {
		return "", err
	}
	key, err := naming.TransferKey(now, rid, filename)
	if err != nil {
		return "", invalid(err)
	}
	return key, nil
}

// PresignGet issues a download URL. Album items and their thumbnails go
// through the access gate; transfer uploads are public.
func (s *presignServiceImpl) PresignGet(ctx context.Context, req *domain.PresignGetRequest, accessToken string) (*domain.PresignResponse, error) {
	l := log.Ctx(ctx)

	album, err := s.albumOf(req.Key)
	if err != nil {
		return nil, err
	}
	if album != "" {
		if err := s.access.Authorize(ctx, album, accessToken); err != nil {
			return nil, err
		}
	}

	ttl := s.opts.Download.Clamp(req.ExpiresIn)
	url, err := s.presigner.GetURL(ctx, req.Key, ttl)
	if err != nil {
		l.Error().Err(err).Str(log.FieldKey, req.Key).Msg("failed to presign download")
		return nil, err
	}

	return &domain.PresignResponse{URL: url, Key: req.Key, ExpiresIn: int(ttl / time.Second)}, nil
}

// albumOf returns the album guarding key, "" for public transfer keys.
func (s *presignServiceImpl) albumOf(key string) (string, error) {
	switch {
	case strings.HasPrefix(key, naming.AlbumsPrefix):
		album, _, err := parseItem(key)
		return album, err
	case strings.HasPrefix(key, naming.ThumbsPrefix):
		album, name, ok := strings.Cut(strings.TrimPrefix(key, naming.ThumbsPrefix), "/")
		if !ok || naming.ValidateAlbum(album) != nil || naming.ValidateName(name) != nil {
			return "", invalidf("invalid thumbnail key")
		}
		return album, nil
	case strings.HasPrefix(key, naming.UploadsPrefix):
		if err := naming.ValidateName(strings.TrimPrefix(key, naming.UploadsPrefix)); err != nil {
			return "", invalid(err)
		}
		return "", nil
	default:
		return "", invalidf("key is outside the public layout")
	}
}

// contentTypeFor guesses a MIME type from the extension.
func contentTypeFor(key string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(key))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
