package service

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/andresverguilla1987/mixtli-nube/internal/domain"
	"github.com/andresverguilla1987/mixtli-nube/internal/naming"
	"github.com/andresverguilla1987/mixtli-nube/pkg/log"
	"github.com/andresverguilla1987/mixtli-nube/pkg/storage"
)

// archiveServiceImpl implements ArchiveService.
type archiveServiceImpl struct {
	store   storage.Storage
	access  AccessService
	deflate bool
}

// NewArchiveService creates a new ZIP streamer. Entries are stored unless
// deflate is set.
func NewArchiveService(store storage.Storage, access AccessService, deflate bool) ArchiveService {
	return &archiveServiceImpl{
		store:   store,
		access:  access,
		deflate: deflate,
	}
}

// PrepareZip resolves the entries of an archive.
func (s *archiveServiceImpl) PrepareZip(ctx context.Context, album string, keys []string, accessToken string) (*domain.ZipPlan, error) {
	if err := checkAlbum(album); err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, album, accessToken); err != nil {
		return nil, err
	}

	plan := &domain.ZipPlan{Album: album}

	if len(keys) == 0 {
		files, err := s.store.List(ctx, naming.AlbumPrefix(album))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if naming.IsSentinel(f.Key) {
				continue
			}
			plan.Entries = append(plan.Entries, domain.ZipEntry{
				Key:          f.Key,
				Name:         naming.RelativeName(album, f.Key),
				Size:         f.Size,
				LastModified: f.LastModified,
			})
		}
		if len(plan.Entries) == 0 {
			return nil, fmt.Errorf("%w: album %s is empty", ErrNotFound, album)
		}
		return plan, nil
	}

	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		key, err := s.resolveKey(album, k)
		if err != nil {
			return nil, err
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		info, err := s.store.Stat(ctx, key)
		if err != nil {
			return nil, notFound(err, key)
		}
		plan.Entries = append(plan.Entries, domain.ZipEntry{
			Key:          key,
			Name:         naming.RelativeName(album, key),
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	return plan, nil
}

// resolveKey accepts either a full item key or a name relative to the album.
func (s *archiveServiceImpl) resolveKey(album, k string) (string, error) {
	key := k
	if !strings.HasPrefix(k, naming.AlbumsPrefix) {
		var err error
		if key, err = naming.ItemKey(album, k); err != nil {
			return "", invalid(err)
		}
	}

	owner, _, err := parseItem(key)
	if err != nil {
		return "", err
	}
	if owner != album {
		return "", invalidf("%s is not in album %s", k, album)
	}
	if naming.IsSentinel(key) {
		return "", invalidf("%s cannot be archived", k)
	}
	return key, nil
}

// WriteZip streams plan into w. On error the central directory is not
// written, so the output is never a valid archive.
func (s *archiveServiceImpl) WriteZip(ctx context.Context, plan *domain.ZipPlan, w io.Writer) error {
	ctx = log.WithAlbum(ctx, plan.Album)
	l := log.Ctx(ctx)

	method := zip.Store
	if s.deflate {
		method = zip.Deflate
	}

	zw := zip.NewWriter(w)
	for _, e := range plan.Entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.writeEntry(ctx, zw, e, method); err != nil {
			l.Error().Err(err).Str(log.FieldKey, e.Key).Msg("zip stream interrupted")
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return err
	}
	l.Debug().Int(log.FieldCount, len(plan.Entries)).Msg("zip streamed")
	return nil
}

func (s *archiveServiceImpl) writeEntry(ctx context.Context, zw *zip.Writer, e domain.ZipEntry, method uint16) error {
	rc, err := s.store.Read(ctx, e.Key)
	if err != nil {
		return err
	}
	defer rc.Close()

	hdr := &zip.FileHeader{
		Name:     e.Name,
		Method:   method,
		Modified: e.LastModified,
	}
	hdr.SetMode(0o644)

	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, rc); err != nil {
		return fmt.Errorf("copy %s: %w", e.Key, err)
	}
	return nil
}
