// Package objectstore keeps the original uploaded bytes in an S3-compatible
// (MinIO) or Google Cloud Storage bucket.
package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const (
	ProviderMinio = "minio"
	ProviderGCS   = "gcs"

	documentPrefix = "documents/"
)

// Store is implemented by MinioStore and GCSStore. Put returns a URL that
// anyone holding it can read the bytes from. Delete of a missing key
// succeeds.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// DocumentKey is the object key for a document's original bytes.
func DocumentKey(userID, documentID, extension string) string {
	return documentPrefix + userID + "/" + documentID + extension
}

func publicURL(base, bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), url.PathEscape(bucket), strings.Join(segments, "/"))
}
