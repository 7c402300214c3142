// Package s3 implements the remote object client against Amazon S3 or any
// S3-compatible store.
//
// Range fetches map to GetObject with an HTTP Range header and an If-Match
// condition carrying the version token captured at open time. The store
// answering 412 Precondition Failed is how DriftFS learns that an object
// was overwritten underneath an open handle.
package s3

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Client implements object.Client backed by an S3 bucket.
//
// Thread Safety:
// Safe for concurrent use. The underlying aws-sdk-go-v2 client is
// goroutine-safe and Client holds no mutable state besides it.
type Client struct {
	client    *s3.Client
	bucket    string
	keyPrefix string

	// Retry configuration for transient errors
	retry retryConfig

	// Metrics is optional; nil disables collection.
	metrics Metrics
}

// retryConfig holds retry settings for S3 operations.
type retryConfig struct {
	maxAttempts       uint          // Total attempts including the first (default: 3)
	initialBackoff    time.Duration // Backoff before the first retry (default: 100ms)
	maxBackoff        time.Duration // Ceiling for exponential backoff (default: 2s)
	backoffMultiplier float64       // Backoff growth factor (default: 2.0)
}

// Config contains configuration for the S3 object client.
type Config struct {
	// Client is the configured S3 client.
	Client *s3.Client

	// Bucket is the S3 bucket name.
	Bucket string

	// KeyPrefix is an optional prefix applied to all object keys.
	// Example: "datasets/" turns key "a/b" into "datasets/a/b".
	KeyPrefix string

	// MaxAttempts is the total number of attempts for a fetch, including
	// the first (default: 3). Only transient failures are retried.
	MaxAttempts uint

	// InitialBackoff is the backoff before the first retry (default: 100ms).
	// Subsequent retries back off exponentially up to MaxBackoff.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff between retries (default: 2s).
	MaxBackoff time.Duration

	// BackoffMultiplier is the exponential growth factor (default: 2.0).
	BackoffMultiplier float64

	// Metrics is an optional metrics collector.
	Metrics Metrics
}

// NewS3ClientFromConfig creates an aws-sdk S3 client from flat configuration
// parameters. Helper for wiring from YAML configuration.
func NewS3ClientFromConfig(
	ctx context.Context,
	endpoint,
	region,
	accessKeyID,
	secretAccessKey string,
	forcePathStyle bool,
) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	loadOpts = append(loadOpts, awsconfig.WithRegion(region))

	// Static credentials when provided; otherwise the default chain
	// (env, shared credentials, IMDS) applies.
	if accessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
		o.UsePathStyle = forcePathStyle
	})

	return client, nil
}

// New creates a new S3-backed object client and verifies bucket access.
// The bucket must already exist.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff == 0 {
		initialBackoff = 100 * time.Millisecond
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 2 * time.Second
	}
	backoffMultiplier := cfg.BackoffMultiplier
	if backoffMultiplier == 0 {
		backoffMultiplier = 2.0
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &Client{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		metrics:   cfg.Metrics,
		retry: retryConfig{
			maxAttempts:       maxAttempts,
			initialBackoff:    initialBackoff,
			maxBackoff:        maxBackoff,
			backoffMultiplier: backoffMultiplier,
		},
	}, nil
}

// objectKey returns the full S3 key for an object key, applying the
// configured prefix.
func (c *Client) objectKey(key string) string {
	if c.keyPrefix != "" {
		return c.keyPrefix + key
	}
	return key
}

// backoffFor returns the backoff duration preceding retry number attempt
// (0-based).
func (c *Client) backoffFor(attempt uint) time.Duration {
	backoff := float64(c.retry.initialBackoff)
	for i := uint(0); i < attempt; i++ {
		backoff *= c.retry.backoffMultiplier
	}
	if backoff > float64(c.retry.maxBackoff) {
		backoff = float64(c.retry.maxBackoff)
	}
	return time.Duration(backoff)
}
