package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"documind-backend/internal/app"
	"documind-backend/internal/model"
	"documind-backend/internal/platform/ctxutil"
	"documind-backend/internal/platform/identity"
	"documind-backend/internal/platform/logger"
)

type stubAuthenticator struct {
	user *model.User
	err  error
	seen string
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string) (*model.User, error) {
	s.seen = token
	return s.user, s.err
}

func newAuthRouter(auth Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Authenticate(auth, logger.Nop()))
	r.GET("/me", func(c *gin.Context) {
		id, _ := UserID(c)
		c.String(http.StatusOK, id)
	})
	return r
}

func TestAuthenticateStoresUserID(t *testing.T) {
	auth := &stubAuthenticator{user: &model.User{ID: "sub-1"}}
	r := newAuthRouter(auth)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "bearer  tok-123 ")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "sub-1" {
		t.Fatalf("unexpected response: got=%d %q", rec.Code, rec.Body.String())
	}
	if auth.seen != "tok-123" {
		t.Fatalf("token passed on: got=%q want=%q", auth.seen, "tok-123")
	}
}

func TestAuthenticateRejects(t *testing.T) {
	cases := []struct {
		name   string
		header string
		err    error
		want   int
	}{
		{"no header", "", nil, http.StatusUnauthorized},
		{"basic scheme", "Basic abc", nil, http.StatusUnauthorized},
		{"empty bearer", "Bearer   ", nil, http.StatusUnauthorized},
		{"invalid token", "Bearer x", fmt.Errorf("%w: expired", app.ErrUnauthenticated), http.StatusUnauthorized},
		{"provider down", "Bearer x", fmt.Errorf("%w: jwks", app.ErrIdentityProvider), http.StatusServiceUnavailable},
		{"user store down", "Bearer x", errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newAuthRouter(&stubAuthenticator{user: &model.User{ID: "sub-1"}, err: tc.err})
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("unexpected status: got=%d want=%d", rec.Code, tc.want)
			}
		})
	}
}

type acceptAll struct{}

func (acceptAll) Verify(context.Context, string) (*identity.Identity, error) {
	return &identity.Identity{Subject: "sub-1", Provider: identity.ProviderFirebase}, nil
}

type unreachableUsers struct{}

func (unreachableUsers) Upsert(context.Context, *model.User) error {
	return errors.New("dial tcp 127.0.0.1:5432: connection refused")
}

func TestAuthenticateDatabaseDownIsNotUnauthorized(t *testing.T) {
	svc := app.NewIdentityService(acceptAll{}, unreachableUsers{}, app.Timeouts{}, logger.Nop())
	r := newAuthRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: got=%d want=%d body=%s", rec.Code, http.StatusInternalServerError, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "40100") {
		t.Fatalf("database outage reported as unauthenticated: %s", rec.Body.String())
	}
}

func TestAttachTraceContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	var seen *ctxutil.TraceData
	r.GET("/", func(c *gin.Context) {
		seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerRequestID, "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if seen == nil || seen.RequestID != "req-1" || seen.TraceID == "" {
		t.Fatalf("unexpected trace data: %+v", seen)
	}
	if got := rec.Header().Get(headerTraceID); got != seen.TraceID {
		t.Fatalf("trace header: got=%q want=%q", got, seen.TraceID)
	}
	if got := rec.Header().Get(headerRequestID); got != "req-1" {
		t.Fatalf("request header: got=%q want=%q", got, "req-1")
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:5173"}))
	r.POST("/documents/upload", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodOptions, "/documents/upload", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow-origin header: got=%q", got)
	}
}
