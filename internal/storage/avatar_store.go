package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// AvatarStore persists avatar blobs and resolves their public URLs. URL
// takes no request state: the base endpoint is fixed at construction.
type AvatarStore interface {
	Save(ctx context.Context, filename, contentType string, data io.Reader) (string, error)
	URL(key string) string
}

// S3Store stores avatars in an S3-compatible bucket (MinIO in development).
type S3Store struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

// NewS3Store builds an S3Store against the given endpoint with static
// credentials. publicBaseURL is the externally reachable endpoint used to
// format object URLs.
func NewS3Store(ctx context.Context, endpoint, publicBaseURL, region, bucket, accessKey, secretKey string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &S3Store{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// Save uploads the blob under a fresh random key, keeping the original
// file extension, and returns the key.
func (s *S3Store) Save(ctx context.Context, filename, contentType string, data io.Reader) (string, error) {
	key := "avatars/" + uuid.NewString() + strings.ToLower(path.Ext(filename))
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put avatar object: %w", err)
	}
	return key, nil
}

// URL formats the absolute URL for an object key; an empty key yields "".
func (s *S3Store) URL(key string) string {
	if key == "" {
		return ""
	}
	return s.publicBaseURL + "/" + s.bucket + "/" + key
}
