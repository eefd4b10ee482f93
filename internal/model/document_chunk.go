package model

import "time"

// DocumentChunk mirrors one indexed chunk in the relational store so answers
// can still be grounded when the vector index is down, and so vectors can be
// purged by point id.
type DocumentChunk struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	DocumentID   string    `gorm:"size:36;not null;index:idx_chunk_doc_index,priority:1" json:"document_id"`
	ChunkIndex   int       `gorm:"not null;index:idx_chunk_doc_index,priority:2" json:"chunk_index"`
	IndexVersion int       `gorm:"not null" json:"index_version"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	VectorID     string    `gorm:"size:36;not null" json:"vector_db_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// IndexedChunk is a chunk ready to be written to the vector index.
type IndexedChunk struct {
	VectorID   string
	ChunkIndex int
	Content    string
	Vector     []float32
}

// RetrievedChunk is a chunk returned by retrieval, with its similarity score.
type RetrievedChunk struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	VectorID   string  `json:"vector_db_id"`
	Content    string  `json:"content"`
	Score      float32 `json:"score"`
}
