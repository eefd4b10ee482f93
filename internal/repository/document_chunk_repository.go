package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"documind-backend/internal/model"
)

type DocumentChunkRepository struct {
	db *gorm.DB
}

func NewDocumentChunkRepository(db *gorm.DB) *DocumentChunkRepository {
	return &DocumentChunkRepository{db: db}
}

// ListByDocumentID returns up to limit chunks in document order. A
// non-positive limit returns all chunks.
func (r *DocumentChunkRepository) ListByDocumentID(ctx context.Context, documentID string, limit int) ([]model.DocumentChunk, error) {
	q := r.db.WithContext(ctx).Where("document_id = ?", documentID).Order("chunk_index ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var chunks []model.DocumentChunk
	if err := q.Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list chunks by document failed: %w", err)
	}
	return chunks, nil
}
