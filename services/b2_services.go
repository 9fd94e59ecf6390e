package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/kurin/blazer/b2"
)

// BlobStore holds file contents outside MongoDB.
type BlobStore interface {
	Upload(ctx context.Context, r io.Reader, objectName string) (*BlobInfo, error)
	Delete(ctx context.Context, objectName string) error
	SignedURL(ctx context.Context, objectName string, ttl time.Duration) (string, error)
}

type BlobInfo struct {
	ObjectName string
	Size       int64
	SHA1       string
}

type B2Service struct {
	bucketName string
	bucket     *b2.Bucket
}

func NewB2Service(ctx context.Context, keyID, applicationKey, bucketName string) (*B2Service, error) {
	client, err := b2.NewClient(ctx, keyID, applicationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create B2 client: %w", err)
	}

	bucket, err := client.Bucket(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket %s: %w", bucketName, err)
	}

	return &B2Service{bucketName: bucketName, bucket: bucket}, nil
}

// Upload streams r to the bucket while hashing it.
func (s *B2Service) Upload(ctx context.Context, r io.Reader, objectName string) (*BlobInfo, error) {
	writer := s.bucket.Object(objectName).NewWriter(ctx)
	hasher := sha1.New()

	n, err := io.Copy(io.MultiWriter(writer, hasher), r)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to upload %s to B2: %w", objectName, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close B2 writer: %w", err)
	}

	return &BlobInfo{
		ObjectName: objectName,
		Size:       n,
		SHA1:       hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

func (s *B2Service) Delete(ctx context.Context, objectName string) error {
	if err := s.bucket.Object(objectName).Delete(ctx); err != nil {
		if b2.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete %s from B2: %w", objectName, err)
	}
	return nil
}

// SignedURL returns a time-limited GET url for a private bucket.
func (s *B2Service) SignedURL(ctx context.Context, objectName string, ttl time.Duration) (string, error) {
	u, err := s.bucket.Object(objectName).AuthURL(ctx, ttl, "")
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return u.String(), nil
}
