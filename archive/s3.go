package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
	Prefix          string
	URLTTL          time.Duration
}

// S3Sink uploads to an S3-compatible bucket and returns presigned URLs.
type S3Sink struct {
	raw    *minio.Client
	bucket string
	prefix string
	ttl    time.Duration
}

func NewS3Sink(cfg S3Config) (*S3Sink, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = 48 * time.Hour
	}
	return &S3Sink{raw: client, bucket: cfg.Bucket, prefix: cfg.Prefix, ttl: ttl}, nil
}

func (s *S3Sink) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if s.raw == nil {
		return "", fmt.Errorf("s3 client is nil")
	}
	objectKey := s.prefix + key
	_, err := s.raw.PutObject(ctx, s.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %q failed: %w", objectKey, err)
	}

	u, err := s.raw.PresignedGetObject(ctx, s.bucket, objectKey, s.ttl, nil)
	if err != nil {
		return "", fmt.Errorf("presign get object %q failed: %w", objectKey, err)
	}
	return u.String(), nil
}
