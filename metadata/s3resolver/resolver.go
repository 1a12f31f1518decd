// Package s3resolver resolves s3://bucket/key metadata references from S3 or
// any S3-compatible object store.
package s3resolver

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/xraph/pullpay/metadata"
)

const maxObjectSize = 1 << 20

// Compile-time interface check.
var _ metadata.Resolver = (*Resolver)(nil)

// ObjectGetter is the subset of *s3.Client the resolver needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config holds connection settings. Empty credentials fall back to the
// default AWS credential chain.
type Config struct {
	Region          string `json:"region" yaml:"region"`
	EndpointURL     string `json:"endpoint_url" yaml:"endpoint_url"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

// Resolver fetches metadata documents from object storage.
type Resolver struct {
	client ObjectGetter
}

// New builds an S3 client from cfg.
func New(ctx context.Context, cfg Config) (*Resolver, error) {
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3resolver: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	return NewFromClient(client), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client ObjectGetter) *Resolver {
	return &Resolver{client: client}
}

// Resolve implements metadata.Resolver for s3://bucket/key references.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*metadata.Metadata, error) {
	bucket, key, err := splitRef(ref)
	if err != nil {
		return nil, err
	}

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", metadata.ErrUnresolvable, ref, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxObjectSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", metadata.ErrUnresolvable, ref, err)
	}
	return metadata.Decode(data)
}

func splitRef(ref string) (bucket, key string, err error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("%w: %q is not an s3:// reference", metadata.ErrUnresolvable, ref)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("%w: %q has no object key", metadata.ErrUnresolvable, ref)
	}
	return u.Host, key, nil
}
