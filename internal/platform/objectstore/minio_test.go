package objectstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7/pkg/policy"
)

// s3Recorder answers the handful of S3 calls MinioStore makes and remembers
// what it was asked to do.
type s3Recorder struct {
	mu      sync.Mutex
	created bool
	makes   int
	policy  string
	puts    []string
}

func (s *s3Recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucketOnly := strings.Trim(r.URL.Path, "/") == "docs"
	switch {
	case r.Method == http.MethodHead && bucketOnly:
		if !s.created {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && bucketOnly && r.URL.Query().Has("policy"):
		body, _ := io.ReadAll(r.Body)
		s.policy = string(body)
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPut && bucketOnly:
		s.created = true
		s.makes++
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		_, _ = io.Copy(io.Discard, r.Body)
		s.puts = append(s.puts, r.URL.Path)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func newTestMinio(t *testing.T, rec *s3Recorder) (*MinioStore, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	store, err := NewMinio(context.Background(), MinioConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "access",
		SecretKey: "secret-key",
		Region:    "us-east-1",
		Bucket:    "docs",
	})
	if err != nil {
		t.Fatalf("NewMinio: %v", err)
	}
	return store, srv
}

func TestNewMinioMakesDocumentsReadable(t *testing.T) {
	rec := &s3Recorder{}
	newTestMinio(t, rec)

	if rec.makes != 1 {
		t.Fatalf("bucket creations: got=%d want=1", rec.makes)
	}
	var p policy.BucketAccessPolicy
	if err := json.Unmarshal([]byte(rec.policy), &p); err != nil {
		t.Fatalf("policy is not valid json: %v (%s)", err, rec.policy)
	}
	if len(p.Statements) != 1 {
		t.Fatalf("statements: got=%d want=1", len(p.Statements))
	}
	st := p.Statements[0]
	if st.Effect != "Allow" || !st.Principal.AWS.Contains("*") {
		t.Fatalf("unexpected statement %+v", st)
	}
	if !st.Actions.Contains("s3:GetObject") || st.Actions.Contains("s3:ListBucket") || len(st.Actions) != 1 {
		t.Fatalf("actions: got=%v want only s3:GetObject", st.Actions.ToSlice())
	}
	if !st.Resources.Contains("arn:aws:s3:::docs/documents/*") || len(st.Resources) != 1 {
		t.Fatalf("resources: got=%v", st.Resources.ToSlice())
	}
}

func TestNewMinioExistingBucketStillGetsPolicy(t *testing.T) {
	rec := &s3Recorder{created: true}
	newTestMinio(t, rec)

	if rec.makes != 0 {
		t.Fatalf("existing bucket recreated: makes=%d", rec.makes)
	}
	if rec.policy == "" {
		t.Fatal("policy not applied to existing bucket")
	}
}

func TestMinioPutURLAddressesStoredObject(t *testing.T) {
	rec := &s3Recorder{}
	store, srv := newTestMinio(t, rec)

	key := DocumentKey("uid 1", "doc-1", ".pdf")
	got, err := store.Put(context.Background(), key, "application/pdf", []byte("%PDF-1.4 body"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(rec.puts) != 1 {
		t.Fatalf("object writes: got=%d want=1", len(rec.puts))
	}
	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse url %q: %v", got, err)
	}
	if u.Scheme+"://"+u.Host != srv.URL {
		t.Fatalf("url host: got=%q want=%q", u.Scheme+"://"+u.Host, srv.URL)
	}
	if u.Path != rec.puts[0] {
		t.Fatalf("url path: got=%q want written path %q", u.Path, rec.puts[0])
	}
}
