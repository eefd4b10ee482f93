package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"documind-backend/internal/model"
	"documind-backend/internal/platform/identity"
	"documind-backend/internal/platform/logger"
)

// IdentityService turns a bearer token into a local user, creating the user
// row on first sight and refreshing its profile afterwards.
type IdentityService struct {
	verifier TokenVerifier
	users    UserStore
	timeouts Timeouts
	log      *logger.Logger
}

func NewIdentityService(verifier TokenVerifier, users UserStore, timeouts Timeouts, log *logger.Logger) *IdentityService {
	return &IdentityService{
		verifier: verifier,
		users:    users,
		timeouts: timeouts,
		log:      log.With("service", "IdentityService"),
	}
}

func (s *IdentityService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrUnauthenticated
	}

	verifyCtx, cancel := withTimeout(ctx, s.timeouts.Identity)
	id, err := s.verifier.Verify(verifyCtx, token)
	cancel()
	if err != nil {
		if errors.Is(err, identity.ErrProviderUnavailable) {
			return nil, fmt.Errorf("%w: %w", ErrIdentityProvider, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	user := &model.User{
		ID:       id.Subject,
		Email:    strings.ToLower(strings.TrimSpace(id.Email)),
		Name:     strings.TrimSpace(id.Name),
		Provider: id.Provider,
	}
	dbCtx, cancel := withTimeout(ctx, s.timeouts.Database)
	defer cancel()
	if err := s.users.Upsert(dbCtx, user); err != nil {
		return nil, fmt.Errorf("register user %s: %w", user.ID, err)
	}
	return user, nil
}
