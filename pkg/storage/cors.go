package storage

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// CORSRule is one bucket CORS rule.
type CORSRule struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposeHeaders  []string
	MaxAgeSeconds  int32
}

// DefaultCORSRule returns the rule browsers need for presigned uploads and downloads.
func DefaultCORSRule(origins []string) CORSRule {
	return CORSRule{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "PUT", "HEAD"},
		AllowedHeaders: []string{"*"},
		ExposeHeaders:  []string{"ETag", "x-amz-version-id"},
		MaxAgeSeconds:  3600,
	}
}

// PutBucketCORS replaces the bucket CORS configuration.
func (s *S3Storage) PutBucketCORS(ctx context.Context, rules []CORSRule) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	sdkRules := make([]types.CORSRule, 0, len(rules))
	for _, r := range rules {
		sdkRules = append(sdkRules, types.CORSRule{
			AllowedOrigins: r.AllowedOrigins,
			AllowedMethods: r.AllowedMethods,
			AllowedHeaders: r.AllowedHeaders,
			ExposeHeaders:  r.ExposeHeaders,
			MaxAgeSeconds:  aws.Int32(r.MaxAgeSeconds),
		})
	}

	_, err := s.client.PutBucketCors(ctx, &s3.PutBucketCorsInput{
		Bucket:            aws.String(s.bucket),
		CORSConfiguration: &types.CORSConfiguration{CORSRules: sdkRules},
	}, noRetry)
	return opError("put-bucket-cors", s.bucket, err)
}

// GetBucketCORS reads the current bucket CORS configuration.
func (s *S3Storage) GetBucketCORS(ctx context.Context) ([]CORSRule, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.client.GetBucketCors(ctx, &s3.GetBucketCorsInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return nil, opError("get-bucket-cors", s.bucket, err)
	}

	rules := make([]CORSRule, 0, len(out.CORSRules))
	for _, r := range out.CORSRules {
		rules = append(rules, CORSRule{
			AllowedOrigins: r.AllowedOrigins,
			AllowedMethods: r.AllowedMethods,
			AllowedHeaders: r.AllowedHeaders,
			ExposeHeaders:  r.ExposeHeaders,
			MaxAgeSeconds:  aws.ToInt32(r.MaxAgeSeconds),
		})
	}
	return rules, nil
}
