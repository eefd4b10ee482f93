package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/policy"
	"github.com/minio/minio-go/v7/pkg/set"
)

type MinioConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	Region        string
	Bucket        string
	PublicBaseURL string
}

type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewMinio connects, creates the bucket when it does not exist yet and makes
// the objects under documentPrefix anonymously readable so the returned URLs
// resolve. Listing stays private.
func NewMinio(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client failed: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check minio bucket failed: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create minio bucket failed: %w", err)
		}
	}
	readPolicy, err := documentsReadPolicy(cfg.Bucket)
	if err != nil {
		return nil, err
	}
	if err := client.SetBucketPolicy(ctx, cfg.Bucket, readPolicy); err != nil {
		return nil, fmt.Errorf("set minio bucket policy failed: %w", err)
	}

	return &MinioStore{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: minioBaseURL(cfg),
	}, nil
}

// documentsReadPolicy grants s3:GetObject on documentPrefix and nothing else.
func documentsReadPolicy(bucket string) (string, error) {
	p := policy.BucketAccessPolicy{
		Version: "2012-10-17",
		Statements: []policy.Statement{{
			Sid:       "DocumentsPublicRead",
			Effect:    "Allow",
			Principal: policy.User{AWS: set.CreateStringSet("*")},
			Actions:   set.CreateStringSet("s3:GetObject"),
			Resources: set.CreateStringSet("arn:aws:s3:::" + bucket + "/" + documentPrefix + "*"),
		}},
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal minio bucket policy failed: %w", err)
	}
	return string(raw), nil
}

func minioBaseURL(cfg MinioConfig) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + strings.TrimRight(cfg.Endpoint, "/")
}

func (s *MinioStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("minio put object failed: %w", err)
	}
	return publicURL(s.baseURL, s.bucket, key), nil
}

func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio get object failed: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("minio read object failed: %w", err)
	}
	return data, nil
}

func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio remove object failed: %w", err)
	}
	return nil
}

func (s *MinioStore) Ping(ctx context.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("minio ping failed: %w", err)
	}
	return nil
}
