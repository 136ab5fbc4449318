package artifact

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/kavon2323/vitaius-vestra/shared/s3client"
)

// S3Store implements Store on top of an S3 bucket.
type S3Store struct {
	client *s3client.Client
}

// NewS3Store wraps an existing S3 client.
func NewS3Store(client *s3client.Client) *S3Store {
	return &S3Store{client: client}
}

// Put stores data under key.
func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	return s.client.UploadBytes(ctx, key, data)
}

// Get fetches the object stored under key. A missing key returns ErrNotFound.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Download(ctx, key)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to download %q: %w", key, err)
	}
	return data, nil
}

// SignUpload issues a presigned PUT credential for key.
func (s *S3Store) SignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (*SignedUpload, error) {
	url, err := s.client.PresignPut(key, contentType, ttl)
	if err != nil {
		return nil, err
	}
	return &SignedUpload{
		URL:    url,
		Method: http.MethodPut,
		Headers: map[string]string{
			"Content-Type": contentType,
		},
	}, nil
}

// SignDownload issues a presigned GET URL for key.
func (s *S3Store) SignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return s.client.PresignGet(key, ttl)
}

func isNoSuchKey(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
