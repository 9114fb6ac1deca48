// Package thumbnail renders JPEG previews of album images.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/disintegration/imaging"

	"github.com/andresverguilla1987/mixtli-nube/internal/config"
	"github.com/andresverguilla1987/mixtli-nube/internal/naming"
	"github.com/andresverguilla1987/mixtli-nube/pkg/log"
	"github.com/andresverguilla1987/mixtli-nube/pkg/storage"
)

var (
	ErrNotImage = errors.New("not an image")
	ErrTooLarge = errors.New("source image too large")
)

// Generator implements service.Thumbnailer.
type Generator struct {
	store     storage.Storage
	width     int
	height    int
	quality   int
	maxSource int64
}

// NewGenerator constructs a Generator from the thumbnail config. Zero values
// fall back to a 480x480 box at quality 82.
func NewGenerator(store storage.Storage, cfg config.ThumbnailConfig) *Generator {
	g := &Generator{
		store:     store,
		width:     cfg.Width,
		height:    cfg.Height,
		quality:   cfg.Quality,
		maxSource: cfg.MaxSourceBytes,
	}
	if g.width <= 0 {
		g.width = 480
	}
	if g.height <= 0 {
		g.height = 480
	}
	if g.quality <= 0 || g.quality > 100 {
		g.quality = 82
	}
	return g
}

// Ensure renders the thumbnail of an album image unless it already exists,
// and returns its key.
func (g *Generator) Ensure(ctx context.Context, key string) (string, error) {
	if !naming.IsImage(key) {
		return "", fmt.Errorf("%w: %s", ErrNotImage, key)
	}
	thumbKey, err := naming.ThumbKeyForItem(key)
	if err != nil {
		return "", err
	}

	ok, err := g.store.Exists(ctx, thumbKey)
	if err != nil {
		return "", err
	}
	if ok {
		return thumbKey, nil
	}

	if g.maxSource > 0 {
		info, err := g.store.Stat(ctx, key)
		if err != nil {
			return "", err
		}
		if info.Size > g.maxSource {
			return "", fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, key, info.Size)
		}
	}

	buf, err := g.render(ctx, key)
	if err != nil {
		return "", err
	}

	if err := g.store.Write(ctx, thumbKey, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "image/jpeg"); err != nil {
		return "", fmt.Errorf("write thumbnail: %w", err)
	}

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldKey, thumbKey).Int(log.FieldBytes, buf.Len()).Msg("thumbnail written")
	return thumbKey, nil
}

func (g *Generator) render(ctx context.Context, key string) (*bytes.Buffer, error) {
	rc, err := g.store.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var src io.Reader = rc
	if g.maxSource > 0 {
		src = io.LimitReader(rc, g.maxSource)
	}

	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}

	resized := imaging.Fit(img, g.width, g.height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(g.quality)); err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}
	return &buf, nil
}
