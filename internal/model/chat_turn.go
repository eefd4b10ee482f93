package model

import (
	"time"

	"gorm.io/datatypes"
)

// ChatTurn is one question/answer exchange about a document. Append-only.
type ChatTurn struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	DocumentID  string         `gorm:"size:36;not null;index:idx_turn_doc_user,priority:1" json:"document_id"`
	UserID      string         `gorm:"size:128;not null;index:idx_turn_doc_user,priority:2" json:"user_id"`
	UserMessage string         `gorm:"type:text;not null" json:"user_message"`
	BotResponse string         `gorm:"type:text;not null" json:"bot_response"`
	Sources     datatypes.JSON `json:"sources,omitempty"`
	Degraded    bool           `gorm:"not null;default:false" json:"degraded"`
	CreatedAt   time.Time      `gorm:"index" json:"timestamp"`
}

// SourceRef is what ChatTurn.Sources records for each chunk used.
type SourceRef struct {
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}
