package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps plan artifacts in an S3 bucket.
// Key format: {prefix}/{environment}/{runID}/tfplan
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

// S3StoreOption configures an S3Store.
type S3StoreOption func(*S3Store)

// WithS3Client sets a custom S3 client (useful for testing).
func WithS3Client(c S3API) S3StoreOption {
	return func(s *S3Store) { s.client = c }
}

// NewS3Store creates a new S3-backed artifact store.
func NewS3Store(bucket, prefix, region string, opts ...S3StoreOption) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("S3 bucket name required")
	}
	s := &S3Store{
		bucket: bucket,
		prefix: strings.TrimRight(prefix, "/"),
	}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(region))
		}
		cfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		s.client = s3.NewFromConfig(cfg)
	}
	return s, nil
}

// Put uploads a plan artifact and returns its object key.
func (s *S3Store) Put(ctx context.Context, env types.Environment, runID string, plan []byte) (string, error) {
	key := objectKey(s.prefix, env, runID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(plan),
	})
	if err != nil {
		return "", fmt.Errorf("uploading plan artifact: %w", err)
	}
	return key, nil
}

// Get downloads the plan artifact for a run.
func (s *S3Store) Get(ctx context.Context, env types.Environment, runID string) ([]byte, error) {
	key := objectKey(s.prefix, env, runID)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("plan artifact %s: not found", key)
		}
		return nil, fmt.Errorf("downloading plan artifact: %w", err)
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(out.Body)
}

// Delete removes the plan artifact for a run.
func (s *S3Store) Delete(ctx context.Context, env types.Environment, runID string) error {
	key := objectKey(s.prefix, env, runID)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}
