package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"documind-backend/internal/model"
)

type ChatTurnRepository struct {
	db *gorm.DB
}

func NewChatTurnRepository(db *gorm.DB) *ChatTurnRepository {
	return &ChatTurnRepository{db: db}
}

func (r *ChatTurnRepository) Create(ctx context.Context, turn *model.ChatTurn) error {
	if err := r.db.WithContext(ctx).Create(turn).Error; err != nil {
		return fmt.Errorf("create chat turn failed: %w", err)
	}
	return nil
}

// ListByDocument returns the whole conversation oldest first.
func (r *ChatTurnRepository) ListByDocument(ctx context.Context, documentID, userID string) ([]model.ChatTurn, error) {
	var turns []model.ChatTurn
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", documentID, userID).
		Order("created_at ASC").
		Find(&turns).Error
	if err != nil {
		return nil, fmt.Errorf("list chat turns failed: %w", err)
	}
	return turns, nil
}

// ListRecent returns the last limit turns, oldest first.
func (r *ChatTurnRepository) ListRecent(ctx context.Context, documentID, userID string, limit int) ([]model.ChatTurn, error) {
	if limit <= 0 {
		return nil, nil
	}
	var turns []model.ChatTurn
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", documentID, userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&turns).Error
	if err != nil {
		return nil, fmt.Errorf("list recent chat turns failed: %w", err)
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}
