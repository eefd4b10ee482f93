package identity

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	jwksTTL = time.Hour
	// Unknown kids refetch the set at most this often.
	jwksMinRefresh = time.Minute
)

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// jwksCache holds the provider's signing keys by kid and refetches them when
// stale or when an unknown kid shows up (key rotation).
type jwksCache struct {
	httpClient *http.Client
	url        string
	now        func() time.Time

	mu        sync.RWMutex
	keys      map[string]any
	fetchedAt time.Time
}

func newJWKSCache(httpClient *http.Client, url string) *jwksCache {
	return &jwksCache{httpClient: httpClient, url: url, now: time.Now, keys: map[string]any{}}
}

func (j *jwksCache) keyfunc(ctx context.Context, t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if strings.TrimSpace(kid) == "" {
		return nil, errors.New("missing kid")
	}

	j.mu.RLock()
	key := j.keys[kid]
	age := j.now().Sub(j.fetchedAt)
	fetched := !j.fetchedAt.IsZero()
	j.mu.RUnlock()
	stale := !fetched || age > jwksTTL
	if key != nil && !stale {
		return key, nil
	}
	if key == nil && !stale && age < jwksMinRefresh {
		return nil, fmt.Errorf("kid not found in jwks: %s", kid)
	}

	if err := j.refresh(ctx); err != nil {
		if key != nil {
			return key, nil
		}
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if key = j.keys[kid]; key == nil {
		return nil, fmt.Errorf("kid not found in jwks: %s", kid)
	}
	return key, nil
}

func (j *jwksCache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.url, nil)
	if err != nil {
		return fmt.Errorf("%w: build jwks request: %v", ErrProviderUnavailable, err)
	}
	res, err := j.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("%w: jwks fetch failed: %s", ErrProviderUnavailable, res.Status)
	}

	var set jwkSet
	if err := json.NewDecoder(res.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode jwks: %v", ErrProviderUnavailable, err)
	}

	next := make(map[string]any, len(set.Keys))
	for _, k := range set.Keys {
		if strings.TrimSpace(k.Kid) == "" {
			continue
		}
		switch k.Kty {
		case "RSA":
			if pub, err := rsaFromModExp(k.N, k.E); err == nil {
				next[k.Kid] = pub
			}
		case "EC":
			if pub, err := ecdsaFromXY(k.Crv, k.X, k.Y); err == nil {
				next[k.Kid] = pub
			}
		}
	}
	if len(next) == 0 {
		return fmt.Errorf("%w: jwks contained no usable keys", ErrProviderUnavailable)
	}

	j.mu.Lock()
	j.keys = next
	j.fetchedAt = j.now()
	j.mu.Unlock()
	return nil
}

func rsaFromModExp(nB64, eB64 string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, err
	}
	e := 0
	for _, b := range eb {
		e = e<<8 + int(b)
	}
	if e == 0 {
		return nil, errors.New("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}

func ecdsaFromXY(crv, xB64, yB64 string) (*ecdsa.PublicKey, error) {
	if crv != "P-256" {
		return nil, fmt.Errorf("unsupported curve: %s", crv)
	}
	xb, err := base64.RawURLEncoding.DecodeString(xB64)
	if err != nil {
		return nil, err
	}
	yb, err := base64.RawURLEncoding.DecodeString(yB64)
	if err != nil {
		return nil, err
	}
	curve := elliptic.P256()
	x, y := new(big.Int).SetBytes(xb), new(big.Int).SetBytes(yb)
	if !curve.IsOnCurve(x, y) {
		return nil, errors.New("invalid EC point")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}
