package storage

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Storage implements Storage and Presigner for any S3-compatible store
// (AWS S3, Cloudflare R2, iDrive e2, MinIO).
type S3Storage struct {
	client        *s3.Client
	presignClient *s3.PresignClient // uses the public endpoint when publicURL is set
	bucket        string
	opTimeout     time.Duration
	batchSize     int
	concurrency   int
}

// S3Config holds configuration for S3 storage.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"` // Required for MinIO and most non-AWS providers
	PublicURL       string `mapstructure:"public_url"`     // Optional endpoint browsers reach for presigned URLs

	DialTimeout           time.Duration `mapstructure:"dial_timeout"`
	TLSHandshakeTimeout   time.Duration `mapstructure:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `mapstructure:"response_header_timeout"`
	OperationTimeout      time.Duration `mapstructure:"operation_timeout"`
	MaxAttempts           int           `mapstructure:"max_attempts"`
	MaxBackoff            time.Duration `mapstructure:"max_backoff"`
	DeleteBatchSize       int           `mapstructure:"delete_batch_size"`
	Concurrency           int           `mapstructure:"concurrency"`
}

func (c *S3Config) setDefaults() {
	if c.Region == "" {
		c.Region = "auto"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.TLSHandshakeTimeout <= 0 {
		c.TLSHandshakeTimeout = 5 * time.Second
	}
	if c.ResponseHeaderTimeout <= 0 {
		c.ResponseHeaderTimeout = 15 * time.Second
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
	if c.DeleteBatchSize <= 0 || c.DeleteBatchSize > MaxBatchDelete {
		c.DeleteBatchSize = MaxBatchDelete
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
}

// NewS3Storage creates a new S3Storage instance.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	cfg.setDefaults()

	httpClient := awshttp.NewBuildableClient().
		WithDialerOptions(func(d *net.Dialer) {
			d.Timeout = cfg.DialTimeout
		}).
		WithTransportOptions(func(tr *http.Transport) {
			tr.TLSHandshakeTimeout = cfg.TLSHandshakeTimeout
			tr.ResponseHeaderTimeout = cfg.ResponseHeaderTimeout
		})

	// Build AWS config options
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithHTTPClient(httpClient),
		config.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = cfg.MaxAttempts
				o.MaxBackoff = cfg.MaxBackoff
			})
		}),
	}

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	// If publicURL is set, presigned URLs are built against it so that the
	// browser can reach them even when the gateway talks to a private endpoint.
	presignClient := s3.NewPresignClient(client)
	if cfg.PublicURL != "" {
		pubClient := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.PublicURL)
			o.UsePathStyle = cfg.UsePathStyle
		})
		presignClient = s3.NewPresignClient(pubClient)
	}

	return &S3Storage{
		client:        client,
		presignClient: presignClient,
		bucket:        cfg.Bucket,
		opTimeout:     cfg.OperationTimeout,
		batchSize:     cfg.DeleteBatchSize,
		concurrency:   cfg.Concurrency,
	}, nil
}

// noRetry disables the retryer for calls that are not safe to repeat blindly.
func noRetry(o *s3.Options) {
	o.Retryer = aws.NopRetryer{}
}

func (s *S3Storage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// Write stores content from the reader with the given key.
func (s *S3Storage) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}

	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	_, err := s.client.PutObject(ctx, input, noRetry)
	return opError("put", key, err)
}

// Read retrieves content for the given key. The body streams under the
// caller's context; only the response header wait is bounded.
func (s *S3Storage) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, opError("get", key, err)
	}

	return output.Body, nil
}

// Stat returns object metadata via HEAD.
func (s *S3Storage) Stat(ctx context.Context, key string) (*FileInfo, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, opError("head", key, err)
	}

	return &FileInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ContentType:  aws.ToString(out.ContentType),
	}, nil
}

// Exists checks if content with the given key exists.
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	return exists(s.Stat(ctx, key))
}

// ListPage returns a single ListObjectsV2 page.
func (s *S3Storage) ListPage(ctx context.Context, opts ListOptions) (*ListPage, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(opts.Prefix),
	}
	if opts.Delimiter != "" {
		input.Delimiter = aws.String(opts.Delimiter)
	}
	if opts.Token != "" {
		input.ContinuationToken = aws.String(opts.Token)
	}
	if opts.Limit > 0 {
		input.MaxKeys = aws.Int32(int32(min(opts.Limit, MaxBatchDelete)))
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, opError("list", opts.Prefix, err)
	}

	page := &ListPage{
		Objects:  make([]FileInfo, 0, len(out.Contents)),
		Prefixes: make([]string, 0, len(out.CommonPrefixes)),
	}
	for _, obj := range out.Contents {
		page.Objects = append(page.Objects, FileInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	for _, cp := range out.CommonPrefixes {
		page.Prefixes = append(page.Prefixes, aws.ToString(cp.Prefix))
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

// List returns information about all files with keys starting with the given prefix.
func (s *S3Storage) List(ctx context.Context, prefix string) ([]FileInfo, error) {
	return listAll(ctx, s, prefix)
}

// Copy duplicates an object server-side.
func (s *S3Storage) Copy(ctx context.Context, srcKey, dstKey string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource(s.bucket, srcKey)),
	}, noRetry)
	return opError("copy", srcKey, err)
}

// copySource builds the URL-encoded "bucket/key" value CopyObject expects.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

// Delete removes the content with the given key.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, noRetry)
	return opError("delete", key, err)
}

// DeletePrefix removes all content with keys starting with the given prefix.
func (s *S3Storage) DeletePrefix(ctx context.Context, prefix string) error {
	files, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(files))
	for _, f := range files {
		keys = append(keys, f.Key)
	}

	res, err := s.DeleteMany(ctx, keys)
	if err != nil {
		return err
	}
	if len(res.Errors) > 0 {
		first := res.Errors[0]
		return &OpError{Op: "delete-prefix", Key: first.Key, Err: fmt.Errorf("%d keys not deleted: %s", len(res.Errors), first.Message)}
	}
	return nil
}

// DeleteMany removes keys with DeleteObjects, at most one thousand per call.
func (s *S3Storage) DeleteMany(ctx context.Context, keys []string) (*DeleteResult, error) {
	return deleteInChunks(ctx, keys, s.batchSize, s.concurrency, s.deleteBatch)
}

func (s *S3Storage) deleteBatch(ctx context.Context, keys []string) (*DeleteResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	objects := make([]types.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
	}

	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{
			Objects: objects,
			Quiet:   aws.Bool(true),
		},
	}, noRetry)
	if err != nil {
		return nil, opError("delete-batch", "", err)
	}

	// Quiet mode only reports failures; everything else was deleted.
	failed := make(map[string]struct{}, len(out.Errors))
	res := &DeleteResult{Deleted: make([]string, 0, len(keys))}
	for _, e := range out.Errors {
		key := aws.ToString(e.Key)
		failed[key] = struct{}{}
		res.Errors = append(res.Errors, DeleteError{
			Key:     key,
			Code:    aws.ToString(e.Code),
			Message: aws.ToString(e.Message),
		})
	}
	for _, k := range keys {
		if _, ok := failed[k]; !ok {
			res.Deleted = append(res.Deleted, k)
		}
	}
	return res, nil
}

// GetURL returns a presigned GET URL.
func (s *S3Storage) GetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	presignedReq, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", opError("presign-get", key, err)
	}

	return presignedReq.URL, nil
}

// GetUploadURL returns a presigned PUT URL for direct client upload.
func (s *S3Storage) GetUploadURL(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	presignedReq, err := s.presignClient.PresignPutObject(ctx, input, s3.WithPresignExpires(expires))
	if err != nil {
		return "", opError("presign-put", key, err)
	}

	return presignedReq.URL, nil
}

// GetBucket returns the bucket name.
func (s *S3Storage) GetBucket() string {
	return s.bucket
}

// listAll follows continuation tokens until the listing is exhausted.
func listAll(ctx context.Context, s Storage, prefix string) ([]FileInfo, error) {
	var files []FileInfo
	token := ""
	for {
		page, err := s.ListPage(ctx, ListOptions{Prefix: prefix, Token: token})
		if err != nil {
			return nil, err
		}
		files = append(files, page.Objects...)
		if page.NextToken == "" {
			return files, nil
		}
		token = page.NextToken
	}
}
