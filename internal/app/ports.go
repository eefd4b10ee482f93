package app

import (
	"context"

	"documind-backend/internal/ai"
	"documind-backend/internal/model"
	"documind-backend/internal/platform/identity"
)

type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	ListByUserID(ctx context.Context, userID string) ([]model.Document, error)
	GetByIDAndUserID(ctx context.Context, id, userID string) (*model.Document, error)
	ActivateIndex(ctx context.Context, documentID string, version int, embeddingModel string, chunks []model.DocumentChunk) error
	DeleteCascade(ctx context.Context, id string) error
}

type ChunkStore interface {
	ListByDocumentID(ctx context.Context, documentID string, limit int) ([]model.DocumentChunk, error)
}

type ChatTurnStore interface {
	Create(ctx context.Context, turn *model.ChatTurn) error
	ListByDocument(ctx context.Context, documentID, userID string) ([]model.ChatTurn, error)
	ListRecent(ctx context.Context, documentID, userID string, limit int) ([]model.ChatTurn, error)
}

type UserStore interface {
	Upsert(ctx context.Context, user *model.User) error
}

type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

type VectorIndex interface {
	Upsert(ctx context.Context, documentID, userID string, version int, chunks []model.IndexedChunk) error
	Search(ctx context.Context, documentID string, version int, vector []float32, k int) ([]model.RetrievedChunk, error)
	DeleteDocument(ctx context.Context, documentID string) error
	DeleteVersion(ctx context.Context, documentID string, version int) error
	DeleteStale(ctx context.Context, documentID string, keep int) error
}

type Embedder interface {
	Model() string
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type ChatCompleter interface {
	Complete(ctx context.Context, messages []ai.ChatMessage) (string, error)
}

// CleanupPublisher hands purge work to a background worker.
type CleanupPublisher interface {
	PublishCleanup(ctx context.Context, job model.CleanupJob) error
}

type HistoryCache interface {
	Load(ctx context.Context, documentID, userID string) ([]model.ChatTurn, bool, error)
	StoreUnlessDirty(ctx context.Context, documentID, userID string, turns []model.ChatTurn) (bool, error)
	Invalidate(ctx context.Context, documentID, userID string) error
}

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*identity.Identity, error)
}
