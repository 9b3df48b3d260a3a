// Package storage implements the blob-storage collaborator: attachment
// uploads land in a MinIO bucket and are served back by object name. The
// gateway itself only ever sees the resulting descriptors.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"github.com/chatapp/gateway-server-go/internal/config"
)

type BlobStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewBlobStore connects to MinIO. baseURL is the public prefix under which
// objects are served back (the /storage route), without a trailing slash.
func NewBlobStore(cfg *config.Config) (*BlobStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect minio: %w", err)
	}

	baseURL := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}

	return &BlobStore{
		client:  client,
		bucket:  cfg.MinioBucket,
		baseURL: baseURL,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *BlobStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	log.Info().Str("bucket", s.bucket).Msg("storage bucket created")
	return nil
}

// Put uploads an object and returns its public URL.
func (s *BlobStore) Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return s.ObjectURL(objectName), nil
}

// Get opens an object for streaming. The caller closes it.
func (s *BlobStore) Get(ctx context.Context, objectName string) (*minio.Object, error) {
	return s.client.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
}

func (s *BlobStore) ObjectURL(objectName string) string {
	return fmt.Sprintf("%s/storage/%s", s.baseURL, objectName)
}
