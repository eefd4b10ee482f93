package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"documind-backend/internal/model"
	"documind-backend/internal/pkg/chunker"
	"documind-backend/internal/pkg/keylock"
	"documind-backend/internal/pkg/textextract"
	"documind-backend/internal/platform/logger"
	"documind-backend/internal/platform/objectstore"
)

var tracer = otel.Tracer("documind-backend/internal/app")

const rollbackTimeout = 30 * time.Second

type IngestConfig struct {
	ChunkSize        int
	ChunkOverlap     int
	EmbedBatchSize   int
	EmbedConcurrency int
	MaxUploadBytes   int64
}

type DocumentService struct {
	docs      DocumentStore
	objects   ObjectStore
	index     VectorIndex
	embedder  Embedder
	publisher CleanupPublisher
	history   HistoryCache
	locks     *keylock.Locker
	cfg       IngestConfig
	timeouts  Timeouts
	log       *logger.Logger
}

// NewDocumentService wires the ingestion pipeline. publisher and history may
// be nil: purges then run inline and no cache is invalidated.
func NewDocumentService(
	docs DocumentStore,
	objects ObjectStore,
	index VectorIndex,
	embedder Embedder,
	publisher CleanupPublisher,
	history HistoryCache,
	locks *keylock.Locker,
	cfg IngestConfig,
	timeouts Timeouts,
	log *logger.Logger,
) *DocumentService {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = chunker.DefaultOverlap
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 10
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 1
	}
	if locks == nil {
		locks = keylock.New()
	}
	return &DocumentService{
		docs:      docs,
		objects:   objects,
		index:     index,
		embedder:  embedder,
		publisher: publisher,
		history:   history,
		locks:     locks,
		cfg:       cfg,
		timeouts:  timeouts,
		log:       log.With("service", "DocumentService"),
	}
}

type UploadInput struct {
	UserID      string
	Title       string
	FileName    string
	ContentType string
	Data        []byte
}

// Upload validates, stores and indexes a file. Either the document ends up
// ready and fully indexed, or nothing of it remains.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (doc *model.Document, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Upload", trace.WithAttributes(
		attribute.String("file_name", input.FileName),
		attribute.Int("size_bytes", len(input.Data)),
	))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(input.UserID) == "" || len(input.Data) == 0 {
		return nil, ErrInvalidInput
	}
	if s.cfg.MaxUploadBytes > 0 && int64(len(input.Data)) > s.cfg.MaxUploadBytes {
		return nil, ErrFileTooLarge
	}
	if utf8.RuneCountInString(strings.TrimSpace(input.Title)) > model.MaxTitleLength {
		return nil, fmt.Errorf("%w: title exceeds %d characters", ErrInvalidInput, model.MaxTitleLength)
	}

	format, err := textextract.DeclaredFormat(input.FileName, input.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	chunks, err := s.extractChunks(input.Data, format)
	if err != nil {
		return nil, err
	}

	doc = &model.Document{
		ID:             uuid.NewString(),
		UserID:         input.UserID,
		Title:          documentTitle(input.Title, input.FileName),
		FileName:       storedFileName(input.FileName),
		MimeType:       format.MimeType(),
		FileType:       string(format),
		SizeBytes:      int64(len(input.Data)),
		EmbeddingModel: s.embedder.Model(),
		IndexVersion:   1,
		Status:         model.DocumentStatusProcessing,
	}
	doc.ObjectKey = objectstore.DocumentKey(doc.UserID, doc.ID, format.Extension())
	span.SetAttributes(attribute.String("document_id", doc.ID), attribute.Int("chunks", len(chunks)))

	unlock := s.locks.Lock(doc.ID)
	defer unlock()

	storeCtx, cancel := withTimeout(ctx, s.timeouts.Storage)
	doc.FileURL, err = s.objects.Put(storeCtx, doc.ObjectKey, doc.MimeType, input.Data)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	dbCtx, cancel := withTimeout(ctx, s.timeouts.Database)
	err = s.docs.Create(dbCtx, doc)
	cancel()
	if err != nil {
		s.rollbackUpload(ctx, doc, false)
		return nil, err
	}

	rows, err := s.indexChunks(ctx, doc, doc.IndexVersion, chunks)
	if err == nil {
		dbCtx, cancel := withTimeout(ctx, s.timeouts.Database)
		err = s.docs.ActivateIndex(dbCtx, doc.ID, doc.IndexVersion, doc.EmbeddingModel, rows)
		cancel()
	}
	if err != nil {
		s.rollbackUpload(ctx, doc, true)
		return nil, err
	}

	doc.Status = model.DocumentStatusReady
	doc.ChunkCount = len(rows)
	s.log.Info("document ingested",
		"document_id", doc.ID,
		"user_id", doc.UserID,
		"file_type", doc.FileType,
		"chunks", doc.ChunkCount,
	)
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, userID string) ([]model.Document, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}
	dbCtx, cancel := withTimeout(ctx, s.timeouts.Database)
	defer cancel()
	return s.docs.ListByUserID(dbCtx, userID)
}

func (s *DocumentService) Get(ctx context.Context, userID, documentID string) (*model.Document, error) {
	return getOwnedDocument(ctx, s.docs, s.timeouts.Database, userID, documentID)
}

// Reindex rebuilds the document's vectors with the configured embedding model
// under a new generation. Searches keep reading the old generation until the
// new one is activated.
func (s *DocumentService) Reindex(ctx context.Context, userID, documentID string) (doc *model.Document, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Reindex", trace.WithAttributes(
		attribute.String("document_id", documentID),
	))
	defer func() { endSpan(span, err) }()

	unlock := s.locks.Lock(documentID)
	defer unlock()

	doc, err = getOwnedDocument(ctx, s.docs, s.timeouts.Database, userID, documentID)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := withTimeout(ctx, s.timeouts.Storage)
	data, err := s.objects.Get(storeCtx, doc.ObjectKey)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	chunks, err := s.extractChunks(data, textextract.Format(doc.FileType))
	if err != nil {
		return nil, err
	}

	version := doc.IndexVersion + 1
	embeddingModel := s.embedder.Model()
	rows, err := s.indexChunks(ctx, doc, version, chunks)
	if err == nil {
		dbCtx, cancel := withTimeout(ctx, s.timeouts.Database)
		err = s.docs.ActivateIndex(dbCtx, doc.ID, version, embeddingModel, rows)
		cancel()
	}
	if err != nil {
		s.dropGeneration(ctx, doc.ID, version)
		return nil, err
	}

	previous := doc.IndexVersion
	doc.IndexVersion = version
	doc.EmbeddingModel = embeddingModel
	doc.ChunkCount = len(rows)
	doc.Status = model.DocumentStatusReady

	idxCtx, cancel := withTimeout(ctx, s.timeouts.Index)
	if err := s.index.DeleteStale(idxCtx, doc.ID, version); err != nil {
		s.log.Warn("purge stale generations failed", "document_id", doc.ID, "keep", version, "error", err)
	}
	cancel()

	s.log.Info("document reindexed",
		"document_id", doc.ID,
		"from_version", previous,
		"to_version", version,
		"embedding_model", embeddingModel,
		"chunks", len(rows),
	)
	return doc, nil
}

// Delete removes the document and its conversation from the database, then
// purges vectors and stored bytes. Purge failures are logged, not returned.
func (s *DocumentService) Delete(ctx context.Context, userID, documentID string) error {
	unlock := s.locks.Lock(documentID)
	defer unlock()

	doc, err := getOwnedDocument(ctx, s.docs, s.timeouts.Database, userID, documentID)
	if err != nil {
		return err
	}

	dbCtx, cancel := withTimeout(ctx, s.timeouts.Database)
	err = s.docs.DeleteCascade(dbCtx, doc.ID)
	cancel()
	if err != nil {
		return err
	}
	if s.history != nil {
		_ = s.history.Invalidate(ctx, doc.ID, userID)
	}

	job := model.CleanupJob{DocumentID: doc.ID, ObjectKey: doc.ObjectKey, Reason: "deleted"}
	if s.publisher != nil {
		err := s.publisher.PublishCleanup(ctx, job)
		if err == nil {
			s.log.Info("document deleted, purge queued", "document_id", doc.ID)
			return nil
		}
		s.log.Warn("queue purge failed, purging inline", "document_id", doc.ID, "error", err)
	}
	if err := s.Purge(context.WithoutCancel(ctx), job); err != nil {
		s.log.Error("purge deleted document failed", "document_id", doc.ID, "error", err)
	}
	s.log.Info("document deleted", "document_id", doc.ID)
	return nil
}

// Purge removes every vector generation and the stored object of a deleted
// document. Both steps are attempted even if the first fails.
func (s *DocumentService) Purge(ctx context.Context, job model.CleanupJob) error {
	var errs []error

	idxCtx, cancel := withTimeout(ctx, s.timeouts.Index)
	if err := s.index.DeleteDocument(idxCtx, job.DocumentID); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrIndexUnavailable, err))
	}
	cancel()

	if job.ObjectKey != "" {
		storeCtx, cancel := withTimeout(ctx, s.timeouts.Storage)
		if err := s.objects.Delete(storeCtx, job.ObjectKey); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrStorageUnavailable, err))
		}
		cancel()
	}
	return errors.Join(errs...)
}

func (s *DocumentService) extractChunks(data []byte, format textextract.Format) ([]chunker.Chunk, error) {
	text, err := textextract.Extract(data, format)
	switch {
	case errors.Is(err, textextract.ErrUnsupportedFormat):
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	case errors.Is(err, textextract.ErrNoText):
		return nil, ErrNoExtractableText
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrCorruptDocument, err)
	}

	chunks := chunker.Split(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return nil, ErrNoExtractableText
	}
	return chunks, nil
}

// indexChunks embeds chunks in concurrent batches and writes them to the
// vector index under version. It returns the rows that mirror the points.
func (s *DocumentService) indexChunks(ctx context.Context, doc *model.Document, version int, chunks []chunker.Chunk) ([]model.DocumentChunk, error) {
	ctx, span := tracer.Start(ctx, "DocumentService.indexChunks", trace.WithAttributes(
		attribute.Int("version", version),
		attribute.Int("chunks", len(chunks)),
	))
	defer span.End()

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.EmbedConcurrency)
	for start := 0; start < len(chunks); start += s.cfg.EmbedBatchSize {
		end := start + s.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Text)
			}
			embedCtx, cancel := withTimeout(gctx, s.timeouts.Embedding)
			defer cancel()
			batch, err := s.embedder.EmbedBatch(embedCtx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
			}
			if len(batch) != len(texts) {
				return fmt.Errorf("embed chunks %d-%d: got %d vectors", start, end-1, len(batch))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingService, err)
	}

	points := make([]model.IndexedChunk, len(chunks))
	rows := make([]model.DocumentChunk, len(chunks))
	for i, c := range chunks {
		vectorID := uuid.NewString()
		points[i] = model.IndexedChunk{
			VectorID:   vectorID,
			ChunkIndex: c.Index,
			Content:    c.Text,
			Vector:     vectors[i],
		}
		rows[i] = model.DocumentChunk{
			ID:           uuid.NewString(),
			DocumentID:   doc.ID,
			ChunkIndex:   c.Index,
			IndexVersion: version,
			Content:      c.Text,
			VectorID:     vectorID,
		}
	}

	idxCtx, cancel := withTimeout(ctx, s.timeouts.Index)
	defer cancel()
	if err := s.index.Upsert(idxCtx, doc.ID, doc.UserID, version, points); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	return rows, nil
}

// rollbackUpload undoes a failed upload. It runs detached from the request
// so a cancelled client cannot leave orphans behind.
func (s *DocumentService) rollbackUpload(ctx context.Context, doc *model.Document, created bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	if created {
		s.dropGeneration(ctx, doc.ID, doc.IndexVersion)
		if err := s.docs.DeleteCascade(ctx, doc.ID); err != nil {
			s.log.Error("rollback document row failed", "document_id", doc.ID, "error", err)
		}
	}
	if err := s.objects.Delete(ctx, doc.ObjectKey); err != nil {
		s.log.Error("rollback stored object failed", "document_id", doc.ID, "error", err)
	}
	s.log.Warn("upload rolled back", "document_id", doc.ID)
}

func (s *DocumentService) dropGeneration(ctx context.Context, documentID string, version int) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := s.index.DeleteVersion(ctx, documentID, version); err != nil {
		s.log.Error("drop index generation failed", "document_id", documentID, "version", version, "error", err)
	}
}

func getOwnedDocument(ctx context.Context, docs DocumentStore, timeout time.Duration, userID, documentID string) (*model.Document, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(documentID) == "" {
		return nil, ErrInvalidInput
	}
	dbCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	doc, err := docs.GetByIDAndUserID(dbCtx, documentID, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	return doc, nil
}

func documentTitle(title, fileName string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	base := filepath.Base(fileName)
	if t := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base))); t != "" {
		return truncateRunes(t, model.MaxTitleLength)
	}
	return "Untitled"
}

// storedFileName drops any client path and shortens the name to the column
// width, keeping the extension.
func storedFileName(fileName string) string {
	base := filepath.Base(fileName)
	if utf8.RuneCountInString(base) <= model.MaxFileNameLength {
		return base
	}
	ext := filepath.Ext(base)
	if utf8.RuneCountInString(ext) >= model.MaxFileNameLength {
		return truncateRunes(base, model.MaxFileNameLength)
	}
	stem := strings.TrimSuffix(base, ext)
	return truncateRunes(stem, model.MaxFileNameLength-utf8.RuneCountInString(ext)) + ext
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
