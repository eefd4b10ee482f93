package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"documind-backend/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ListByUserID(ctx context.Context, userID string) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) GetByIDAndUserID(ctx context.Context, id, userID string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// ActivateIndex replaces the document's chunk rows with chunks and points the
// document at version, in one transaction.
func (r *DocumentRepository) ActivateIndex(ctx context.Context, documentID string, version int, embeddingModel string, chunks []model.DocumentChunk) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&model.DocumentChunk{}).Error; err != nil {
			return fmt.Errorf("delete old chunks failed: %w", err)
		}
		if len(chunks) > 0 {
			if err := tx.CreateInBatches(&chunks, 100).Error; err != nil {
				return fmt.Errorf("create chunks failed: %w", err)
			}
		}
		res := tx.Model(&model.Document{}).Where("id = ?", documentID).Updates(map[string]interface{}{
			"index_version":   version,
			"embedding_model": embeddingModel,
			"chunk_count":     len(chunks),
			"status":          model.DocumentStatusReady,
		})
		if res.Error != nil {
			return fmt.Errorf("update document index failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("document %s vanished during indexing", documentID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("activate document index failed: %w", err)
	}
	return nil
}

// DeleteCascade removes the document with its chunk rows and chat turns.
func (r *DocumentRepository) DeleteCascade(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.ChatTurn{}).Error; err != nil {
			return fmt.Errorf("delete chat turns failed: %w", err)
		}
		if err := tx.Where("document_id = ?", id).Delete(&model.DocumentChunk{}).Error; err != nil {
			return fmt.Errorf("delete chunks failed: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&model.Document{}).Error; err != nil {
			return fmt.Errorf("delete document row failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}
