// Package s3loader loads assets from S3 or any S3-compatible object
// store (MinIO and friends). One loader serves one bucket; keys map
// to object keys beneath an optional prefix.
package s3loader

import (
	"context"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	resourcepool "github.com/wippyai/resource-pool"
	"github.com/wippyai/resource-pool/errors"
)

// Config selects the bucket and how to reach it.
type Config struct {
	AccessKeyID     string // AWS or S3-compatible access key
	SecretAccessKey string // AWS or S3-compatible secret key
	Region          string // AWS region (e.g., "us-east-1")
	Endpoint        string // Custom endpoint for S3-compatible storage (MinIO, etc.)
	Bucket          string // S3 bucket name
	Prefix          string // Object key prefix
	ForcePathStyle  bool   // Use path-style URLs (required for MinIO)
}

// API is the slice of the S3 client the loader uses. Tests inject
// fakes; production code gets a lazily built real client.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Object is the loaded asset: one object's bytes plus identity
// metadata for cache checks.
type Object struct {
	Key  resourcepool.Key
	Data []byte
	ETag string
}

// Size returns the object byte count.
func (o *Object) Size() int {
	return len(o.Data)
}

// Loader fetches objects as poolable assets. The client is built on
// first use so constructing a loader never touches the network.
type Loader struct {
	cfg Config

	mu     sync.Mutex
	client API
}

// New creates a loader for cfg's bucket.
func New(cfg Config) *Loader {
	return &Loader{cfg: cfg}
}

// NewWithClient creates a loader calling the given API instead of a
// real S3 client.
func NewWithClient(cfg Config, client API) *Loader {
	return &Loader{cfg: cfg, client: client}
}

// Load fetches the object addressed by key in a background goroutine.
func (l *Loader) Load(ctx context.Context, key resourcepool.Key) resourcepool.Ticket {
	return resourcepool.Start(ctx, key, l.fetch)
}

func (l *Loader) fetch(ctx context.Context, key resourcepool.Key) (any, error) {
	client, err := l.ensureClient(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindLoadFailed, err, "build s3 client")
	}

	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.cfg.Bucket),
		Key:    aws.String(l.objectKey(key)),
	})
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindLoadFailed, err, "get object")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindLoadFailed, err, "read object body")
	}

	return &Object{
		Key:  key,
		Data: data,
		ETag: aws.ToString(resp.ETag),
	}, nil
}

func (l *Loader) objectKey(key resourcepool.Key) string {
	if l.cfg.Prefix == "" {
		return string(key)
	}
	return l.cfg.Prefix + "/" + string(key)
}

func (l *Loader) ensureClient(ctx context.Context) (API, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client != nil {
		return l.client, nil
	}

	var opts []func(*config.LoadOptions) error
	if l.cfg.Region != "" {
		opts = append(opts, config.WithRegion(l.cfg.Region))
	}
	if l.cfg.AccessKeyID != "" && l.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				l.cfg.AccessKeyID,
				l.cfg.SecretAccessKey,
				"", // session token
			),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	var s3Opts []func(*s3.Options)
	if l.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(l.cfg.Endpoint)
		})
	}
	if l.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	l.client = s3.NewFromConfig(cfg, s3Opts...)
	return l.client, nil
}

var _ resourcepool.Loader = (*Loader)(nil)
