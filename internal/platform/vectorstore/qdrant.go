// Package vectorstore keeps chunk embeddings in a Qdrant collection. Every
// point carries document_id and index_version in its payload and every query
// is filtered on both, so results never cross documents or generations.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/qdrant/go-client/qdrant"

	"documind-backend/internal/model"
	"documind-backend/internal/platform/logger"
)

const (
	fieldDocumentID   = "document_id"
	fieldUserID       = "user_id"
	fieldIndexVersion = "index_version"
	fieldChunkIndex   = "chunk_index"
	fieldContent      = "content"

	upsertBatchSize = 64
)

type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  int
}

type QdrantStore struct {
	client     *qdrant.Client
	collection string
	log        *logger.Logger
}

// New connects and makes sure the collection and its payload indexes exist.
func New(ctx context.Context, cfg Config, log *logger.Logger) (*QdrantStore, error) {
	if cfg.Dimension <= 0 {
		return nil, errors.New("vector dimension must be positive")
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client failed: %w", err)
	}

	s := &QdrantStore{client: client, collection: cfg.Collection, log: log.With("service", "QdrantStore")}
	if err := s.ensureCollection(ctx, uint64(cfg.Dimension)); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, dimension uint64) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check qdrant collection failed: %w", err)
	}
	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     dimension,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("create qdrant collection failed: %w", err)
		}
	}

	indexes := []struct {
		field string
		kind  qdrant.FieldType
	}{
		{fieldDocumentID, qdrant.FieldType_FieldTypeKeyword},
		{fieldIndexVersion, qdrant.FieldType_FieldTypeInteger},
	}
	for _, idx := range indexes {
		wait := true
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			Wait:           &wait,
			FieldName:      idx.field,
			FieldType:      idx.kind.Enum(),
		})
		if err != nil {
			return fmt.Errorf("create qdrant payload index %s failed: %w", idx.field, err)
		}
	}
	return nil
}

// Upsert writes chunks of one document generation. Point ids are the chunks'
// VectorIDs, so retrying a batch is idempotent.
func (s *QdrantStore) Upsert(ctx context.Context, documentID, userID string, version int, chunks []model.IndexedChunk) error {
	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		points := make([]*qdrant.PointStruct, 0, end-start)
		for _, c := range chunks[start:end] {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(c.VectorID),
				Vectors: qdrant.NewVectors(c.Vector...),
				Payload: qdrant.NewValueMap(pointPayload(documentID, userID, version, c)),
			})
		}

		wait := true
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           &wait,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("qdrant upsert failed: %w", err)
		}
	}
	return nil
}

// Search returns up to k chunks of one document generation, best first.
func (s *QdrantStore) Search(ctx context.Context, documentID string, version int, vector []float32, k int) ([]model.RetrievedChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	limit := uint64(k)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         generationFilter(documentID, version),
		Limit:          &limit,
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}

	hits := make([]hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, hit{
			vectorID: p.GetId().GetUuid(),
			score:    p.GetScore(),
			payload:  p.GetPayload(),
		})
	}
	out, dropped := toRetrieved(documentID, hits, k)
	if dropped > 0 {
		s.log.Error("qdrant returned points of another document",
			"document_id", documentID,
			"dropped", dropped,
		)
	}
	return out, nil
}

// DeleteDocument removes every point of the document, all generations.
func (s *QdrantStore) DeleteDocument(ctx context.Context, documentID string) error {
	return s.deleteByFilter(ctx, &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(fieldDocumentID, documentID)},
	})
}

// DeleteVersion removes one generation, used to roll back a failed indexing run.
func (s *QdrantStore) DeleteVersion(ctx context.Context, documentID string, version int) error {
	return s.deleteByFilter(ctx, generationFilter(documentID, version))
}

// DeleteStale removes every generation of the document except keep.
func (s *QdrantStore) DeleteStale(ctx context.Context, documentID string, keep int) error {
	return s.deleteByFilter(ctx, &qdrant.Filter{
		Must:    []*qdrant.Condition{qdrant.NewMatch(fieldDocumentID, documentID)},
		MustNot: []*qdrant.Condition{qdrant.NewMatchInt(fieldIndexVersion, int64(keep))},
	})
}

func (s *QdrantStore) deleteByFilter(ctx context.Context, filter *qdrant.Filter) error {
	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return fmt.Errorf("qdrant delete failed: %w", err)
	}
	return nil
}

func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func pointPayload(documentID, userID string, version int, c model.IndexedChunk) map[string]any {
	return map[string]any{
		fieldDocumentID:   documentID,
		fieldUserID:       userID,
		fieldIndexVersion: int64(version),
		fieldChunkIndex:   int64(c.ChunkIndex),
		fieldContent:      c.Content,
	}
}

func generationFilter(documentID string, version int) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(fieldDocumentID, documentID),
			qdrant.NewMatchInt(fieldIndexVersion, int64(version)),
		},
	}
}

type hit struct {
	vectorID string
	score    float32
	payload  map[string]*qdrant.Value
}

// toRetrieved drops points that belong to another document, orders the rest
// by score descending (ties keep server order) and caps them at k.
func toRetrieved(documentID string, hits []hit, k int) (out []model.RetrievedChunk, dropped int) {
	out = make([]model.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		if h.payload[fieldDocumentID].GetStringValue() != documentID {
			dropped++
			continue
		}
		out = append(out, model.RetrievedChunk{
			DocumentID: documentID,
			ChunkIndex: int(h.payload[fieldChunkIndex].GetIntegerValue()),
			VectorID:   h.vectorID,
			Content:    h.payload[fieldContent].GetStringValue(),
			Score:      h.score,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, dropped
}
