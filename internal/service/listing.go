package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/andresverguilla1987/mixtli-nube/internal/domain"
	"github.com/andresverguilla1987/mixtli-nube/internal/naming"
	"github.com/andresverguilla1987/mixtli-nube/pkg/log"
	"github.com/andresverguilla1987/mixtli-nube/pkg/storage"
)

// maxPageSize matches the store's own page limit.
const maxPageSize = 1000

// listingServiceImpl implements ListingService.
type listingServiceImpl struct {
	store     storage.Storage
	presigner storage.Presigner
	access    AccessService
	thumbs    Thumbnailer
	thumbTTL  time.Duration
}

// NewListingService creates a new listing service.
func NewListingService(store storage.Storage, presigner storage.Presigner, access AccessService, thumbs Thumbnailer, thumbTTL time.Duration) ListingService {
	return &listingServiceImpl{
		store:     store,
		presigner: presigner,
		access:    access,
		thumbs:    thumbs,
		thumbTTL:  thumbTTL,
	}
}

// ListAlbums returns every album name, sorted.
func (s *listingServiceImpl) ListAlbums(ctx context.Context) ([]string, error) {
	albums := []string{}
	token := ""
	for {
		page, err := s.store.ListPage(ctx, storage.ListOptions{
			Prefix:    naming.AlbumsPrefix,
			Delimiter: "/",
			Token:     token,
		})
		if err != nil {
			return nil, err
		}
		for _, p := range page.Prefixes {
			if album := naming.AlbumFromPrefix(p); naming.ValidateAlbum(album) == nil {
				albums = append(albums, album)
			}
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	sort.Strings(albums)
	return albums, nil
}

// ListAlbum lists the items of an album, sentinels excluded.
func (s *listingServiceImpl) ListAlbum(ctx context.Context, album, accessToken string, limit int, pageToken string) (*domain.AlbumPage, error) {
	if err := checkAlbum(album); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, invalidf("limit must be positive")
	}
	if err := s.access.Authorize(ctx, album, accessToken); err != nil {
		return nil, err
	}

	prefix := naming.AlbumPrefix(album)
	page := &domain.AlbumPage{Album: album, Items: []domain.Item{}}

	if limit == 0 && pageToken == "" {
		files, err := s.store.List(ctx, prefix)
		if err != nil {
			return nil, err
		}
		page.Items = toItems(album, files)
		sort.SliceStable(page.Items, func(i, j int) bool {
			a, b := page.Items[i], page.Items[j]
			if !a.LastModified.Equal(b.LastModified) {
				return a.LastModified.After(b.LastModified)
			}
			return a.Key < b.Key
		})
		return page, nil
	}

	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	res, err := s.store.ListPage(ctx, storage.ListOptions{Prefix: prefix, Token: pageToken, Limit: limit})
	if err != nil {
		return nil, err
	}
	page.Items = toItems(album, res.Objects)
	page.NextToken = res.NextToken
	return page, nil
}

func toItems(album string, files []storage.FileInfo) []domain.Item {
	items := make([]domain.Item, 0, len(files))
	for _, f := range files {
		if naming.IsSentinel(f.Key) {
			continue
		}
		items = append(items, domain.Item{
			Key:          f.Key,
			Name:         naming.RelativeName(album, f.Key),
			Size:         f.Size,
			LastModified: f.LastModified,
		})
	}
	return items
}

// ThumbnailURL makes sure a thumbnail exists and presigns it.
func (s *listingServiceImpl) ThumbnailURL(ctx context.Context, album, name, accessToken string) (*domain.ThumbnailResponse, error) {
	l := log.Ctx(ctx)

	key, err := naming.ItemKey(album, name)
	if err != nil {
		return nil, invalid(err)
	}
	if !naming.IsImage(key) {
		return nil, invalidf("%s is not an image", name)
	}
	if err := s.access.Authorize(ctx, album, accessToken); err != nil {
		return nil, err
	}

	thumbKey, err := s.thumbs.Ensure(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, notFound(err, key)
		}
		l.Error().Err(err).Str(log.FieldKey, key).Msg("failed to build thumbnail")
		return nil, err
	}

	url, err := s.presigner.GetURL(ctx, thumbKey, s.thumbTTL)
	if err != nil {
		return nil, err
	}
	return &domain.ThumbnailResponse{Key: thumbKey, URL: url, ExpiresIn: int(s.thumbTTL / time.Second)}, nil
}
