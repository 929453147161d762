package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
)

// GCSMediaSigner issues V4 signed download URLs for media and profile images.
type GCSMediaSigner struct {
	client *storage.Client
	bucket string
	ttl    time.Duration
}

func NewGCSMediaSigner(ctx context.Context, bucket string, ttl time.Duration) (*GCSMediaSigner, error) {
	if bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &GCSMediaSigner{client: client, bucket: bucket, ttl: ttl}, nil
}

func (s *GCSMediaSigner) SignedURL(ctx context.Context, objectKey string) (string, error) {
	if objectKey == "" {
		return "", errors.New("object key is required")
	}
	return s.client.Bucket(s.bucket).SignedURL(objectKey, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(s.ttl),
	})
}

func (s *GCSMediaSigner) Close() error {
	return s.client.Close()
}
