package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// WithLogger returns ctx carrying logger.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// Ctx returns the request-scoped logger, or the process logger.
func Ctx(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return L()
}

// WithAlbum tags the context logger with the album being served.
func WithAlbum(ctx context.Context, album string) context.Context {
	if album == "" {
		return ctx
	}
	l := Ctx(ctx)
	return WithLogger(ctx, l.With().Str(FieldAlbum, album).Logger())
}
