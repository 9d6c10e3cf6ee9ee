package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"filevault/internal/files"
)

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	KeyPrefix string
	URLExpiry time.Duration
}

// S3Store keeps blob content in S3 or any S3-compatible service. Download
// locators are presigned GET URLs that expire after URLExpiry.
type S3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	keyPrefix string
	urlExpiry time.Duration
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		urlExpiry: expiry,
	}, nil
}

func (s *S3Store) key(path string) string {
	return s.keyPrefix + path
}

func (s *S3Store) Put(ctx context.Context, path string, body io.Reader, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(path)),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to write blob to S3: %w", err)
	}
	return nil
}

func (s *S3Store) DownloadURL(ctx context.Context, path string) (*files.PresignedURL, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	}, s3.WithPresignExpires(s.urlExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to presign download: %w", err)
	}

	return &files.PresignedURL{
		URL:       req.URL,
		ExpiresAt: time.Now().Add(s.urlExpiry),
	}, nil
}

func (s *S3Store) Delete(ctx context.Context, path string) error {
	// DeleteObject is idempotent; deleting a missing key is not an error.
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete blob from S3: %w", err)
	}
	return nil
}
