// Command bucketcors applies the browser CORS rule to the bucket so presigned
// PUT and GET requests from the allowed origins succeed.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/andresverguilla1987/mixtli-nube/internal/config"
	pkglog "github.com/andresverguilla1987/mixtli-nube/pkg/log"
	"github.com/andresverguilla1987/mixtli-nube/pkg/storage"
)

func main() {
	show := flag.Bool("show", false, "print the current rules instead of replacing them")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, Pretty: true, ServiceName: "bucketcors"})
	l := pkglog.L()

	cfg.Storage.Type = config.StorageS3
	if err := cfg.ValidateStorage(); err != nil {
		l.Error().Err(err).Msg("invalid storage configuration")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := storage.NewS3Storage(ctx, cfg.Storage.S3)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to init s3 storage")
	}

	if !*show {
		if len(cfg.CORS.AllowedOrigins) == 0 {
			l.Error().Msg("ALLOWED_ORIGINS is empty, refusing to write an empty rule")
			os.Exit(1)
		}
		rule := storage.DefaultCORSRule(cfg.CORS.AllowedOrigins)
		if err := store.PutBucketCORS(ctx, []storage.CORSRule{rule}); err != nil {
			l.Fatal().Err(err).Str("bucket", store.GetBucket()).Msg("failed to put bucket cors")
		}
		l.Info().Str("bucket", store.GetBucket()).Strs("origins", rule.AllowedOrigins).Msg("bucket cors updated")
	}

	rules, err := store.GetBucketCORS(ctx)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to read bucket cors")
	}
	for i, r := range rules {
		l.Info().Int("rule", i).
			Strs("origins", r.AllowedOrigins).
			Strs("methods", r.AllowedMethods).
			Strs("expose", r.ExposeHeaders).
			Int32("max_age", r.MaxAgeSeconds).
			Msg("cors rule")
	}
}
