package model

import "time"

const (
	DocumentStatusProcessing = "processing"
	DocumentStatusReady      = "ready"

	// Column widths, in characters.
	MaxTitleLength    = 256
	MaxFileNameLength = 256
)

// Document is an uploaded file owned by one user. IndexVersion names the
// vector generation that searches read; EmbeddingModel is the model that
// produced it.
type Document struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	UserID         string    `gorm:"size:128;not null;index" json:"user_id"`
	Title          string    `gorm:"size:256;not null" json:"title"`
	FileName       string    `gorm:"size:256;not null" json:"file_name"`
	FileURL        string    `gorm:"size:1024;not null" json:"file_url"`
	ObjectKey      string    `gorm:"size:512;not null" json:"-"`
	MimeType       string    `gorm:"size:128;not null" json:"mime_type"`
	FileType       string    `gorm:"size:16;not null" json:"file_type"`
	SizeBytes      int64     `gorm:"not null" json:"size_bytes"`
	EmbeddingModel string    `gorm:"size:256;not null" json:"embedding_model"`
	IndexVersion   int       `gorm:"not null;default:1" json:"index_version"`
	ChunkCount     int       `gorm:"not null;default:0" json:"chunk_count"`
	Status         string    `gorm:"size:32;not null;index" json:"status"`
	CreatedAt      time.Time `json:"uploaded_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
