// Package s3 is a block.Store backed by an S3 (or S3-compatible) bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/pagesweep/pkg/store/block"
)

// Config selects the bucket and how to reach it.
type Config struct {
	Bucket string
	Region string

	// Endpoint overrides the service URL, e.g. for MinIO or Localstack.
	Endpoint string

	// KeyPrefix is prepended to every key. Should end with "/" when set.
	KeyPrefix string

	// ForcePathStyle addresses the bucket as a path segment instead of a
	// virtual host. Required by most S3-compatible servers.
	ForcePathStyle bool

	// AccessKeyID and SecretAccessKey, when both set, replace the default
	// credential chain.
	AccessKeyID     string
	SecretAccessKey string
}

// Store talks to one bucket.
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string

	mu     sync.RWMutex
	closed bool
}

// New wraps an existing client.
func New(client *s3.Client, cfg Config) *Store {
	return &Store{client: client, bucket: cfg.Bucket, keyPrefix: cfg.KeyPrefix}
}

// NewFromConfig builds a client from the default AWS configuration chain,
// adjusted by cfg.
func NewFromConfig(ctx context.Context, cfg Config, extra ...func(*s3.Options)) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	opts := []func(*s3.Options){func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}}
	opts = append(opts, extra...)

	return New(s3.NewFromConfig(awsCfg, opts...), cfg), nil
}

func (s *Store) fullKey(key string) string {
	return s.keyPrefix + key
}

func (s *Store) open() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return block.ErrStoreClosed
	}
	return nil
}

func (s *Store) WriteBlock(ctx context.Context, key string, data []byte) error {
	if err := s.open(); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3 put %q: %w", key, err)
	}
	return nil
}

func (s *Store) ReadBlock(ctx context.Context, key string) ([]byte, error) {
	if err := s.open(); err != nil {
		return nil, err
	}
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, block.ErrBlockNotFound
		}
		return nil, fmt.Errorf("s3 get %q: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read body %q: %w", key, err)
	}
	return data, nil
}

func (s *Store) DeleteBlock(ctx context.Context, key string) error {
	if err := s.open(); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("s3 delete %q: %w", key, err)
	}
	return nil
}

// DeleteByPrefix lists matching objects page by page and removes each page
// with one batch call.
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) error {
	if err := s.open(); err != nil {
		return err
	}

	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.fullKey(prefix)),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("s3 list %q: %w", prefix, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]types.ObjectIdentifier, len(page.Contents))
		for i, obj := range page.Contents {
			objects[i] = types.ObjectIdentifier{Key: obj.Key}
		}
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("s3 delete objects %q: %w", prefix, err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("s3 delete objects %q: %d failed, first %s: %s",
				prefix, len(out.Errors), aws.ToString(e.Key), aws.ToString(e.Message))
		}
	}
	return nil
}

func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	if err := s.open(); err != nil {
		return nil, err
	}

	keys := make([]string, 0)
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.fullKey(prefix)),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), s.keyPrefix))
		}
	}
	return keys, nil
}

// HealthCheck issues HeadBucket, which verifies connectivity, credentials
// and bucket existence in one round trip.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.open(); err != nil {
		return err
	}
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("s3 health check on bucket %q: %w", s.bucket, err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "StatusCode: 404")
}

var _ block.Store = (*Store)(nil)
