// Package identity verifies bearer tokens issued by the external identity
// provider and turns their claims into an Identity.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	ProviderFirebase = "firebase"
	ProviderOIDC     = "oidc"
	ProviderHS256    = "hs256"

	firebaseIssuerPrefix = "https://securetoken.google.com/"
	firebaseJWKSURL      = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

	clockLeeway = 30 * time.Second
)

var (
	ErrInvalidToken        = errors.New("invalid bearer token")
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

type Identity struct {
	Subject  string
	Email    string
	Name     string
	Provider string
}

type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

type Config struct {
	Provider          string
	FirebaseProjectID string
	Issuer            string
	Audience          string
	JWKSURL           string
	HMACSecret        string
	HTTPClient        *http.Client
}

func New(cfg Config) (Verifier, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderFirebase:
		project := strings.TrimSpace(cfg.FirebaseProjectID)
		if project == "" {
			return nil, errors.New("firebase project id is required")
		}
		jwksURL := cfg.JWKSURL
		if jwksURL == "" {
			jwksURL = firebaseJWKSURL
		}
		return &tokenVerifier{
			provider: ProviderFirebase,
			methods:  []string{"RS256"},
			issuer:   firebaseIssuerPrefix + project,
			audience: project,
			keyfunc:  newJWKSCache(httpClient, jwksURL).keyfunc,
		}, nil
	case ProviderOIDC:
		if cfg.Issuer == "" || cfg.Audience == "" || cfg.JWKSURL == "" {
			return nil, errors.New("oidc provider needs issuer, audience and jwks url")
		}
		return &tokenVerifier{
			provider: ProviderOIDC,
			methods:  []string{"RS256", "ES256"},
			issuer:   cfg.Issuer,
			audience: cfg.Audience,
			keyfunc:  newJWKSCache(httpClient, cfg.JWKSURL).keyfunc,
		}, nil
	case ProviderHS256:
		if cfg.HMACSecret == "" {
			return nil, errors.New("hs256 provider needs a shared secret")
		}
		secret := []byte(cfg.HMACSecret)
		return &tokenVerifier{
			provider: ProviderHS256,
			methods:  []string{"HS256"},
			issuer:   cfg.Issuer,
			audience: cfg.Audience,
			keyfunc: func(_ context.Context, _ *jwt.Token) (any, error) {
				return secret, nil
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown identity provider %q", cfg.Provider)
	}
}

type tokenVerifier struct {
	provider string
	methods  []string
	issuer   string
	audience string
	keyfunc  func(ctx context.Context, t *jwt.Token) (any, error)
}

func (v *tokenVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockLeeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.keyfunc(ctx, t)
	})
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	return &Identity{
		Subject:  sub,
		Email:    email,
		Name:     name,
		Provider: v.provider,
	}, nil
}
