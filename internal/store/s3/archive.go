// Package s3 provides S3 archival for pruned daily attack logs.
package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds S3 connection settings.
type Config struct {
	Region string
	Bucket string
	Prefix string

	// Endpoint is an optional custom endpoint for S3-compatible storage
	// such as MinIO.
	Endpoint string

	// Static credentials; IAM/ambient credentials are used when empty.
	AccessKeyID     string
	SecretAccessKey string

	// UsePathStyle forces path-style addressing (MinIO, LocalStack).
	UsePathStyle bool
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Region == "" {
		return errors.New("s3: region is required")
	}
	if c.Bucket == "" {
		return errors.New("s3: bucket is required")
	}
	return nil
}

// Archiver uploads gzipped daily logs to an S3 bucket before retention
// deletes them locally.
type Archiver struct {
	client *s3.Client
	config Config
	logger *slog.Logger
}

// NewArchiver creates an archiver against the configured bucket.
func NewArchiver(ctx context.Context, cfg Config, logger *slog.Logger) (*Archiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	a := &Archiver{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		config: cfg,
		logger: logger,
	}

	logger.Info("s3 archiver initialized",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"prefix", cfg.Prefix,
	)
	return a, nil
}

// ArchiveDay gzips one day's log and uploads it as
// <prefix><date>.jsonl.gz.
func (a *Archiver) ArchiveDay(ctx context.Context, date string, data []byte) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return fmt.Errorf("s3: failed to compress day log: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("s3: failed to compress day log: %w", err)
	}

	key := a.config.Prefix + date + ".jsonl.gz"
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return fmt.Errorf("s3: failed to upload %s: %w", key, err)
	}

	a.logger.Info("archived day log",
		"date", date,
		"key", key,
		"original_bytes", len(data),
		"compressed_bytes", buf.Len(),
	)
	return nil
}
