package model

// CleanupJob asks a worker to purge what a deleted document left outside the
// relational store.
type CleanupJob struct {
	DocumentID string `json:"document_id"`
	ObjectKey  string `json:"object_key"`
	Reason     string `json:"reason"`
}
