package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"documind-backend/internal/app"
	"documind-backend/internal/model"
	"documind-backend/internal/platform/logger"
	"documind-backend/internal/transport/http/middleware"
	"documind-backend/internal/transport/http/response"
)

// multipart framing allowance on top of the file itself
const formOverhead = 1 << 20

type DocumentService interface {
	Upload(ctx context.Context, input app.UploadInput) (*model.Document, error)
	List(ctx context.Context, userID string) ([]model.Document, error)
	Get(ctx context.Context, userID, documentID string) (*model.Document, error)
	Reindex(ctx context.Context, userID, documentID string) (*model.Document, error)
	Delete(ctx context.Context, userID, documentID string) error
}

type DocumentHandler struct {
	documents      DocumentService
	maxUploadBytes int64
	log            *logger.Logger
}

type processingStatus struct {
	Status          string `json:"status"`
	ChunksProcessed int    `json:"chunks_processed"`
	FileType        string `json:"file_type"`
}

type uploadResponse struct {
	DocumentID       string           `json:"document_id"`
	Title            string           `json:"title"`
	FileURL          string           `json:"file_url"`
	ProcessingStatus processingStatus `json:"processing_status"`
}

type documentListEntry struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	FileURL    string    `json:"file_url"`
	MimeType   string    `json:"mime_type"`
	Status     string    `json:"status"`
	ChunkCount int       `json:"chunk_count"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type documentListResponse struct {
	Documents []documentListEntry `json:"documents"`
}

func NewDocumentHandler(documents DocumentService, maxUploadBytes int64, log *logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		documents:      documents,
		maxUploadBytes: maxUploadBytes,
		log:            log.With("handler", "DocumentHandler"),
	}
}

// Upload accepts a multipart form with "file" (PDF or DOCX) and an optional
// "title".
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+formOverhead)
	}
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, h.log, app.ErrFileTooLarge, "upload failed")
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if h.maxUploadBytes > 0 && file.Size > h.maxUploadBytes {
		writeError(c, h.log, app.ErrFileTooLarge, "upload failed")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to read file")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to read file")
		return
	}

	doc, err := h.documents.Upload(c.Request.Context(), app.UploadInput{
		UserID:      userID,
		Title:       strings.TrimSpace(c.PostForm("title")),
		FileName:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		writeError(c, h.log, err, "upload failed")
		return
	}

	response.Created(c, uploadResponse{
		DocumentID: doc.ID,
		Title:      doc.Title,
		FileURL:    doc.FileURL,
		ProcessingStatus: processingStatus{
			Status:          doc.Status,
			ChunksProcessed: doc.ChunkCount,
			FileType:        doc.FileType,
		},
	})
}

func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docs, err := h.documents.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.log, err, "list documents failed")
		return
	}

	out := documentListResponse{Documents: make([]documentListEntry, 0, len(docs))}
	for _, d := range docs {
		out.Documents = append(out.Documents, documentListEntry{
			ID:         d.ID,
			Title:      d.Title,
			FileURL:    d.FileURL,
			MimeType:   d.MimeType,
			Status:     d.Status,
			ChunkCount: d.ChunkCount,
			UploadedAt: d.CreatedAt,
		})
	}
	response.OK(c, out)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	doc, err := h.documents.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, h.log, err, "get document failed")
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) Reindex(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	doc, err := h.documents.Reindex(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, h.log, err, "reindex failed")
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	documentID := c.Param("id")
	if err := h.documents.Delete(c.Request.Context(), userID, documentID); err != nil {
		writeError(c, h.log, err, "delete document failed")
		return
	}
	response.OK(c, gin.H{"deleted_document_id": documentID})
}
