package s3client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// Config holds S3 connection configuration
type Config struct {
	Region         string
	Bucket         string
	Endpoint       string // optional, for S3-compatible stores
	ForcePathStyle bool
}

// Client represents an S3 object store client bound to a single bucket
type Client struct {
	config     *Config
	svc        *s3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
	logger     *slog.Logger
}

// NewClient creates a new S3 client and verifies bucket access
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	awsCfg := &aws.Config{
		Region: aws.String(config.Region),
	}
	if config.Endpoint != "" {
		awsCfg.Endpoint = aws.String(config.Endpoint)
	}
	if config.ForcePathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	logger.Info("Connecting to S3",
		slog.String("region", config.Region),
		slog.String("bucket", config.Bucket),
	)

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	svc := s3.New(sess)

	client := &Client{
		config:     config,
		svc:        svc,
		uploader:   s3manager.NewUploaderWithClient(svc),
		downloader: s3manager.NewDownloaderWithClient(svc),
		logger:     logger,
	}

	if err := client.HealthCheck(context.Background()); err != nil {
		logger.Error("Failed to reach S3 bucket",
			slog.Any("error", err),
		)
		return nil, err
	}

	logger.Info("Successfully connected to S3",
		slog.String("bucket", config.Bucket),
	)

	return client, nil
}

// Bucket returns the configured bucket name
func (c *Client) Bucket() string {
	return c.config.Bucket
}

// Upload stores the contents of r under key
func (c *Client) Upload(ctx context.Context, key string, r io.Reader) error {
	_, err := c.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(c.config.Bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %q: %w", key, err)
	}

	c.logger.Debug("Object uploaded to S3",
		slog.String("key", key),
	)
	return nil
}

// UploadBytes stores data under key
func (c *Client) UploadBytes(ctx context.Context, key string, data []byte) error {
	return c.Upload(ctx, key, bytes.NewReader(data))
}

// Download fetches the full object stored under key
func (c *Client) Download(ctx context.Context, key string) ([]byte, error) {
	buf := aws.NewWriteAtBuffer([]byte{})
	_, err := c.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(c.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Object downloaded from S3",
		slog.String("key", key),
		slog.Int("size", len(buf.Bytes())),
	)
	return buf.Bytes(), nil
}

// PresignPut generates a time-limited direct-upload URL for key
func (c *Client) PresignPut(key, contentType string, ttl time.Duration) (string, error) {
	req, _ := c.svc.PutObjectRequest(&s3.PutObjectInput{
		Bucket:      aws.String(c.config.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})

	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("failed to presign PUT for %q: %w", key, err)
	}
	return url, nil
}

// PresignGet generates a time-limited download URL for key
func (c *Client) PresignGet(key string, ttl time.Duration) (string, error) {
	req, _ := c.svc.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(c.config.Bucket),
		Key:    aws.String(key),
	})

	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("failed to presign GET for %q: %w", key, err)
	}
	return url, nil
}

// HealthCheck verifies the bucket is reachable
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.svc.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.config.Bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 health check failed for bucket %q: %w", c.config.Bucket, err)
	}
	return nil
}
