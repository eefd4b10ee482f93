package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"documind-backend/internal/app"
	"documind-backend/internal/model"
	"documind-backend/internal/platform/logger"
	"documind-backend/internal/transport/http/response"
)

const ContextUserIDKey = "user_id"

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// Authenticate requires a bearer token the identity provider accepts and
// stores the caller's user id in the gin context.
func Authenticate(auth Authenticator, log *logger.Logger) gin.HandlerFunc {
	log = log.With("middleware", "Authenticate")
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing or malformed bearer token")
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), token)
		switch {
		case err == nil:
		case errors.Is(err, app.ErrUnauthenticated):
			log.Debug("token rejected", "error", err)
			response.Abort(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired token")
			return
		case errors.Is(err, app.ErrIdentityProvider):
			log.Error("identity provider unavailable", "error", err)
			response.Abort(c, http.StatusServiceUnavailable, response.CodeServiceUnavailable, "identity provider unavailable")
			return
		default:
			// A verified token whose user could not be loaded is not the caller's fault.
			log.Error("authenticate failed", "error", err)
			response.Abort(c, http.StatusInternalServerError, response.CodeInternalServer, "authentication failed")
			return
		}

		c.Set(ContextUserIDKey, user.ID)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// UserID returns the id Authenticate stored.
func UserID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextUserIDKey)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
