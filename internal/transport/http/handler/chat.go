package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"documind-backend/internal/app"
	"documind-backend/internal/platform/logger"
	"documind-backend/internal/transport/http/middleware"
	"documind-backend/internal/transport/http/response"
)

type ChatService interface {
	Ask(ctx context.Context, input app.AskInput) (*app.AskResult, error)
	History(ctx context.Context, userID, documentID string) (*app.HistoryResult, error)
}

type ChatHandler struct {
	chat ChatService
	log  *logger.Logger
}

// ChatRequest carries the question as "message"; "question" is accepted too.
type ChatRequest struct {
	Message  string `json:"message"`
	Question string `json:"question"`
}

type sourceDocument struct {
	Content        string         `json:"content"`
	Metadata       sourceMetadata `json:"metadata"`
	RelevanceScore float32        `json:"relevance_score"`
}

type sourceMetadata struct {
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	VectorID   string `json:"vector_db_id,omitempty"`
}

type chatResponse struct {
	Answer          string           `json:"answer"`
	DocumentID      string           `json:"document_id"`
	SourceDocuments []sourceDocument `json:"source_documents"`
	Degraded        bool             `json:"degraded"`
}

type historyEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
}

type historyResponse struct {
	DocumentID  string         `json:"document_id"`
	Title       string         `json:"title"`
	ChatHistory []historyEntry `json:"chat_history"`
}

func NewChatHandler(chat ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, log: log.With("handler", "ChatHandler")}
}

func (h *ChatHandler) Ask(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	question := req.Message
	if strings.TrimSpace(question) == "" {
		question = req.Question
	}

	result, err := h.chat.Ask(c.Request.Context(), app.AskInput{
		UserID:     userID,
		DocumentID: c.Param("id"),
		Question:   question,
	})
	if err != nil {
		writeError(c, h.log, err, "chat failed")
		return
	}

	out := chatResponse{
		Answer:          result.Answer,
		DocumentID:      result.DocumentID,
		SourceDocuments: make([]sourceDocument, 0, len(result.Sources)),
		Degraded:        result.Degraded,
	}
	for _, s := range result.Sources {
		out.SourceDocuments = append(out.SourceDocuments, sourceDocument{
			Content: s.Content,
			Metadata: sourceMetadata{
				DocumentID: s.DocumentID,
				ChunkIndex: s.ChunkIndex,
				VectorID:   s.VectorID,
			},
			RelevanceScore: s.Score,
		})
	}
	response.OK(c, out)
}

func (h *ChatHandler) History(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	result, err := h.chat.History(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, h.log, err, "get history failed")
		return
	}

	out := historyResponse{
		DocumentID:  result.Document.ID,
		Title:       result.Document.Title,
		ChatHistory: make([]historyEntry, 0, len(result.Turns)),
	}
	for _, t := range result.Turns {
		out.ChatHistory = append(out.ChatHistory, historyEntry{
			ID:          t.ID,
			Timestamp:   t.CreatedAt,
			UserMessage: t.UserMessage,
			BotResponse: t.BotResponse,
		})
	}
	response.OK(c, out)
}
