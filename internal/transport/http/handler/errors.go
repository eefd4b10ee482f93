package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"documind-backend/internal/app"
	"documind-backend/internal/platform/logger"
	"documind-backend/internal/transport/http/response"
)

// writeError maps a service error to its HTTP status and business code.
// Unclassified errors are logged and reported with fallback as message.
func writeError(c *gin.Context, log *logger.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrUnsupportedFormat):
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedFormat, "unsupported file format: only PDF and DOCX are accepted")
	case errors.Is(err, app.ErrFileTooLarge):
		response.Error(c, http.StatusBadRequest, response.CodeFileTooLarge, err.Error())
	case errors.Is(err, app.ErrCorruptDocument):
		response.Error(c, http.StatusUnprocessableEntity, response.CodeUnprocessable, "file could not be parsed as the declared format")
	case errors.Is(err, app.ErrNoExtractableText):
		response.Error(c, http.StatusUnprocessableEntity, response.CodeUnprocessable, err.Error())
	case errors.Is(err, app.ErrUnauthenticated):
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, err.Error())
	case errors.Is(err, app.ErrNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, "document not found")
	case errors.Is(err, app.ErrEmbeddingModelMismatch):
		response.Error(c, http.StatusConflict, response.CodeModelMismatch,
			"document was indexed with a different embedding model; reindex it before asking questions")
	case errors.Is(err, app.ErrDocumentNotReady):
		response.Error(c, http.StatusConflict, response.CodeDocumentNotReady, err.Error())
	case errors.Is(err, app.ErrStorageUnavailable):
		log.Error(fallback, "error", err)
		response.Error(c, http.StatusBadGateway, response.CodeUpstreamFailed, "file storage unavailable")
	case errors.Is(err, app.ErrEmbeddingService):
		log.Error(fallback, "error", err)
		response.Error(c, http.StatusBadGateway, response.CodeUpstreamFailed, "embedding service failed")
	case errors.Is(err, app.ErrLLM):
		log.Error(fallback, "error", err)
		response.Error(c, http.StatusBadGateway, response.CodeUpstreamFailed, "language model failed to answer")
	case errors.Is(err, app.ErrIndexUnavailable):
		log.Error(fallback, "error", err)
		response.Error(c, http.StatusServiceUnavailable, response.CodeServiceUnavailable, "vector index unavailable")
	case errors.Is(err, app.ErrRetrieval):
		log.Error(fallback, "error", err)
		response.Error(c, http.StatusServiceUnavailable, response.CodeServiceUnavailable, "could not retrieve document context")
	case errors.Is(err, app.ErrIdentityProvider):
		log.Error(fallback, "error", err)
		response.Error(c, http.StatusServiceUnavailable, response.CodeServiceUnavailable, "identity provider unavailable")
	default:
		log.Error(fallback, "error", err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
