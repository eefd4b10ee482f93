package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const gcsPublicBase = "https://storage.googleapis.com"

type GCSConfig struct {
	Bucket          string
	CredentialsFile string
	PublicBaseURL   string
}

type GCSStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
	// Buckets with uniform access reject object ACLs; their reads are granted
	// through bucket IAM instead.
	publicACL bool
}

// NewGCS uses application default credentials unless a credentials file is
// configured. The bucket must already exist.
func NewGCS(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client failed: %w", err)
	}

	attrs, err := client.Bucket(cfg.Bucket).Attrs(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("read gcs bucket attrs failed: %w", err)
	}

	base := gcsPublicBase
	if cfg.PublicBaseURL != "" {
		base = strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	return &GCSStore{
		client:    client,
		bucket:    cfg.Bucket,
		baseURL:   base,
		publicACL: !attrs.UniformBucketLevelAccess.Enabled,
	}, nil
}

func (s *GCSStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if s.publicACL {
		w.PredefinedACL = "publicRead"
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write object failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close writer failed: %w", err)
	}
	return publicURL(s.baseURL, s.bucket, key), nil
}

func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs open reader failed: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs read object failed: %w", err)
	}
	return data, nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete object failed: %w", err)
	}
	return nil
}

func (s *GCSStore) Ping(ctx context.Context) error {
	if _, err := s.client.Bucket(s.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("gcs ping failed: %w", err)
	}
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
