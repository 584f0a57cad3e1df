// Package s3 fetches yearwise files from an S3-compatible mirror of the
// IMD archive (AWS S3, MinIO, Garage and friends). The mirror lays files
// out the same way as the local cache: <prefix>/<variable>/<year>.grd.
package s3

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/monsoonlab/imd-grid-etl/internal/domain"
)

// API is the slice of the S3 client the source needs. *s3.Client from the
// AWS SDK satisfies it; tests inject a mock.
type API interface {
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
}

// Config holds the connection settings for the mirror bucket.
type Config struct {
	Endpoint        string // empty for AWS proper; URL for self-hosted stores
	Bucket          string
	Prefix          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// Source downloads yearwise files from a mirror bucket.
type Source struct {
	client API
	bucket string
	prefix string
	logger *slog.Logger
}

// New wraps an existing client, mainly for tests.
func New(client API, bucket, prefix string, logger *slog.Logger) *Source {
	return &Source{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// NewFromConfig builds an SDK client for cfg. Static credentials and a
// custom endpoint with path-style addressing cover the self-hosted stores;
// leaving them empty falls back to the default AWS credential chain.
func NewFromConfig(ctx context.Context, cfg Config, logger *slog.Logger) (*Source, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 mirror: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return New(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// Fetch streams the yearwise object for one (variable, year). The caller
// owns the returned body and must close it.
func (s *Source) Fetch(ctx context.Context, v domain.Variable, year int) (io.ReadCloser, error) {
	key := s.key(v, year)
	s.logger.Debug("fetching year file from mirror",
		"bucket", s.bucket,
		"key", key)

	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("mirror get s3://%s/%s: %w", s.bucket, key, err)
	}
	return out.Body, nil
}

func (s *Source) key(v domain.Variable, year int) string {
	return path.Join(s.prefix, v.Name, fmt.Sprintf("%d.grd", year))
}
