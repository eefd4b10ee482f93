package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"documind-backend/internal/ai"
	"documind-backend/internal/model"
	"documind-backend/internal/platform/logger"
)

const (
	NoContextAnswer = "I couldn't find any relevant information about this in the document. " +
		"Please try rephrasing your question or ask about a different topic covered in the document."

	systemPrompt = "You are a helpful document assistant. Answer the user's question using only the " +
		"context taken from their document. If the context does not contain the answer, say that the " +
		"information is not in the document. Do not make up facts."

	maxQuestionRunes = 4000
)

type ChatService struct {
	docs     DocumentStore
	chunks   ChunkStore
	turns    ChatTurnStore
	embedder Embedder
	index    VectorIndex
	llm      ChatCompleter
	history  HistoryCache

	topK         int
	historyTurns int
	timeouts     Timeouts
	log          *logger.Logger
}

// NewChatService wires the answering path. history may be nil.
func NewChatService(
	docs DocumentStore,
	chunks ChunkStore,
	turns ChatTurnStore,
	embedder Embedder,
	index VectorIndex,
	llm ChatCompleter,
	history HistoryCache,
	topK int,
	historyTurns int,
	timeouts Timeouts,
	log *logger.Logger,
) *ChatService {
	if topK <= 0 {
		topK = 5
	}
	if historyTurns < 0 {
		historyTurns = 0
	}
	return &ChatService{
		docs:         docs,
		chunks:       chunks,
		turns:        turns,
		embedder:     embedder,
		index:        index,
		llm:          llm,
		history:      history,
		topK:         topK,
		historyTurns: historyTurns,
		timeouts:     timeouts,
		log:          log.With("service", "ChatService"),
	}
}

type AskInput struct {
	UserID     string
	DocumentID string
	Question   string
}

type AskResult struct {
	Answer     string                 `json:"answer"`
	DocumentID string                 `json:"document_id"`
	Sources    []model.RetrievedChunk `json:"sources"`
	Degraded   bool                   `json:"degraded"`
	Turn       *model.ChatTurn        `json:"-"`
}

// Ask answers a question about one document and records the exchange.
//
// Retrieval goes to the vector index first. If the index fails or has no hits
// the first chunk rows of the document are used instead and the result is
// marked degraded. With no context at all the fixed NoContextAnswer is
// returned without calling the model.
func (s *ChatService) Ask(ctx context.Context, input AskInput) (result *AskResult, err error) {
	ctx, span := tracer.Start(ctx, "ChatService.Ask", trace.WithAttributes(
		attribute.String("document_id", input.DocumentID),
	))
	defer func() { endSpan(span, err) }()

	question := strings.TrimSpace(input.Question)
	if question == "" || len([]rune(question)) > maxQuestionRunes {
		return nil, ErrInvalidInput
	}

	doc, err := getOwnedDocument(ctx, s.docs, s.timeouts.Database, input.UserID, input.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != model.DocumentStatusReady {
		return nil, ErrDocumentNotReady
	}
	if doc.EmbeddingModel != s.embedder.Model() {
		return nil, fmt.Errorf("%w: indexed with %q, configured %q", ErrEmbeddingModelMismatch, doc.EmbeddingModel, s.embedder.Model())
	}

	sources, degraded, err := s.retrieve(ctx, doc, question)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("sources", len(sources)), attribute.Bool("degraded", degraded))

	answer := NoContextAnswer
	if len(sources) > 0 {
		messages := s.buildPrompt(ctx, doc, input.UserID, question, sources)
		llmCtx, cancel := withTimeout(ctx, s.timeouts.LLM)
		answer, err = s.llm.Complete(llmCtx, messages)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLLM, err)
		}
	}

	turn, err := s.recordTurn(ctx, doc.ID, input.UserID, question, answer, sources, degraded)
	if err != nil {
		return nil, err
	}

	return &AskResult{
		Answer:     answer,
		DocumentID: doc.ID,
		Sources:    sources,
		Degraded:   degraded,
		Turn:       turn,
	}, nil
}

type HistoryResult struct {
	Document *model.Document
	Turns    []model.ChatTurn
}

// History returns the caller's conversation about a document, oldest first.
func (s *ChatService) History(ctx context.Context, userID, documentID string) (*HistoryResult, error) {
	doc, err := getOwnedDocument(ctx, s.docs, s.timeouts.Database, userID, documentID)
	if err != nil {
		return nil, err
	}

	if s.history != nil {
		cached, hit, err := s.history.Load(ctx, doc.ID, userID)
		if err != nil {
			s.log.Warn("history cache read failed", "document_id", doc.ID, "error", err)
		} else if hit {
			return &HistoryResult{Document: doc, Turns: cached}, nil
		}
	}

	dbCtx, cancel := withTimeout(ctx, s.timeouts.Database)
	turns, err := s.turns.ListByDocument(dbCtx, doc.ID, userID)
	cancel()
	if err != nil {
		return nil, err
	}

	if s.history != nil {
		if _, err := s.history.StoreUnlessDirty(ctx, doc.ID, userID, turns); err != nil {
			s.log.Warn("history cache fill failed", "document_id", doc.ID, "error", err)
		}
	}
	return &HistoryResult{Document: doc, Turns: turns}, nil
}

func (s *ChatService) retrieve(ctx context.Context, doc *model.Document, question string) ([]model.RetrievedChunk, bool, error) {
	hits, searchErr := s.search(ctx, doc, question)
	if searchErr == nil && len(hits) > 0 {
		return hits, false, nil
	}
	if searchErr != nil {
		s.log.Warn("vector search failed, falling back to database chunks",
			"document_id", doc.ID,
			"error", searchErr,
		)
	}

	dbCtx, cancel := withTimeout(ctx, s.timeouts.Database)
	rows, err := s.chunks.ListByDocumentID(dbCtx, doc.ID, s.topK)
	cancel()
	if err != nil {
		if searchErr != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrRetrieval, searchErr)
		}
		return nil, false, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	fallback := make([]model.RetrievedChunk, 0, len(rows))
	for _, r := range rows {
		fallback = append(fallback, model.RetrievedChunk{
			DocumentID: r.DocumentID,
			ChunkIndex: r.ChunkIndex,
			VectorID:   r.VectorID,
			Content:    r.Content,
		})
	}
	return fallback, true, nil
}

func (s *ChatService) search(ctx context.Context, doc *model.Document, question string) ([]model.RetrievedChunk, error) {
	embedCtx, cancel := withTimeout(ctx, s.timeouts.Embedding)
	vector, err := s.embedder.Embed(embedCtx, question)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingService, err)
	}

	idxCtx, cancel := withTimeout(ctx, s.timeouts.Index)
	defer cancel()
	hits, err := s.index.Search(idxCtx, doc.ID, doc.IndexVersion, vector, s.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	return hits, nil
}

// buildPrompt lays out the system instruction, up to historyTurns earlier
// exchanges (oldest first), then the context chunks in the order given and
// the question.
func (s *ChatService) buildPrompt(ctx context.Context, doc *model.Document, userID, question string, sources []model.RetrievedChunk) []ai.ChatMessage {
	var recent []model.ChatTurn
	if s.historyTurns > 0 {
		dbCtx, cancel := withTimeout(ctx, s.timeouts.Database)
		var err error
		recent, err = s.turns.ListRecent(dbCtx, doc.ID, userID, s.historyTurns)
		cancel()
		if err != nil {
			s.log.Warn("load chat history for prompt failed", "document_id", doc.ID, "error", err)
			recent = nil
		}
	}
	return composePrompt(doc.Title, question, sources, recent)
}

func composePrompt(title, question string, sources []model.RetrievedChunk, recent []model.ChatTurn) []ai.ChatMessage {
	messages := make([]ai.ChatMessage, 0, 2+2*len(recent))
	messages = append(messages, ai.ChatMessage{Role: ai.RoleSystem, Content: systemPrompt})
	for _, t := range recent {
		messages = append(messages,
			ai.ChatMessage{Role: ai.RoleUser, Content: t.UserMessage},
			ai.ChatMessage{Role: ai.RoleAssistant, Content: t.BotResponse},
		)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\n\nContext:\n", title)
	for i, c := range sources {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		b.WriteString(c.Content)
	}
	fmt.Fprintf(&b, "\n\nQuestion: %s\n\nAnswer:", question)
	messages = append(messages, ai.ChatMessage{Role: ai.RoleUser, Content: b.String()})
	return messages
}

func (s *ChatService) recordTurn(ctx context.Context, documentID, userID, question, answer string, sources []model.RetrievedChunk, degraded bool) (*model.ChatTurn, error) {
	refs := make([]model.SourceRef, len(sources))
	for i, c := range sources {
		refs[i] = model.SourceRef{ChunkIndex: c.ChunkIndex, Score: c.Score}
	}
	raw, err := json.Marshal(refs)
	if err != nil {
		return nil, fmt.Errorf("marshal chat sources failed: %w", err)
	}

	turn := &model.ChatTurn{
		ID:          uuid.NewString(),
		DocumentID:  documentID,
		UserID:      userID,
		UserMessage: question,
		BotResponse: answer,
		Sources:     datatypes.JSON(raw),
		Degraded:    degraded,
		CreatedAt:   time.Now().UTC(),
	}

	if s.history != nil {
		if err := s.history.Invalidate(ctx, documentID, userID); err != nil {
			s.log.Warn("history cache invalidation failed", "document_id", documentID, "error", err)
		}
	}
	dbCtx, cancel := withTimeout(ctx, s.timeouts.Database)
	defer cancel()
	if err := s.turns.Create(dbCtx, turn); err != nil {
		return nil, err
	}
	return turn, nil
}
