package rabbitmq

import (
	"testing"

	"documind-backend/internal/model"
)

func TestCleanupJobRoundTrip(t *testing.T) {
	in := model.CleanupJob{DocumentID: "doc-1", ObjectKey: "documents/u/doc-1.pdf", Reason: "deleted"}
	body, err := encodeCleanupJob(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeCleanupJob(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestCleanupJobRequiresDocumentID(t *testing.T) {
	if _, err := encodeCleanupJob(model.CleanupJob{ObjectKey: "k"}); err == nil {
		t.Fatal("expected encode error without document id")
	}
	if _, err := DecodeCleanupJob([]byte(`{"object_key":"k"}`)); err == nil {
		t.Fatal("expected decode error without document id")
	}
	if _, err := DecodeCleanupJob([]byte(`not json`)); err == nil {
		t.Fatal("expected decode error for garbage")
	}
}
