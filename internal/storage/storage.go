// Package storage keeps synthesized voice notes in object storage and hands
// out short-lived download URLs for delivery.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// PresignedURLTTL bounds how long a delivered audio link stays valid.
const PresignedURLTTL = 15 * time.Minute

// Config carries the object storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Service stores and serves audio objects in a single bucket.
type Service struct {
	client *minio.Client
	bucket string
}

func NewService(cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &Service{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the audio bucket if it does not exist yet.
func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// UploadAudio stores one voice note and returns its object key. Keys are
// date-prefixed so old objects can be purged by prefix scans.
func (s *Service) UploadAudio(ctx context.Context, reader io.Reader, size int64, contentType string) (string, error) {
	key := fmt.Sprintf("%s/%s.mp3", time.Now().UTC().Format("2006-01-02"), uuid.New().String())

	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload audio %s: %w", key, err)
	}
	return key, nil
}

// PresignURL returns a time-limited download URL for a stored voice note.
func (s *Service) PresignURL(ctx context.Context, key string) (string, error) {
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, PresignedURLTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return presigned.String(), nil
}

// Remove deletes one stored voice note.
func (s *Service) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove audio %s: %w", key, err)
	}
	return nil
}

// PurgeOlderThan removes voice notes whose objects predate the cutoff.
// Returns how many objects were removed.
func (s *Service) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return removed, fmt.Errorf("failed to list audio objects: %w", obj.Err)
		}
		if !obj.LastModified.Before(cutoff) {
			continue
		}
		if err := s.Remove(ctx, obj.Key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
