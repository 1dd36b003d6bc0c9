package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/agrotrack/plotmanager/internal/domain"
	"github.com/agrotrack/plotmanager/internal/security/auth"
)

// IdentityResolver maps a session token to the live principal. The
// principal is re-read on every call, so role changes and deletions take
// effect on the next request.
type IdentityResolver struct {
	tokens  *auth.TokenManager
	users   domain.UserRepository
	revoked auth.RevocationList
	logger  *slog.Logger
}

func NewIdentityResolver(tokens *auth.TokenManager, users domain.UserRepository, revoked auth.RevocationList, logger *slog.Logger) *IdentityResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityResolver{tokens: tokens, users: users, revoked: revoked, logger: logger}
}

func (r *IdentityResolver) Resolve(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}

	claims, err := r.tokens.Verify(token)
	if err != nil {
		r.logger.DebugContext(ctx, "token verification failed", slog.String("error", err.Error()))
		return nil, domain.ErrInvalidToken
	}

	revoked, err := r.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, wrap(err, "identity", "REVOCATION_CHECK_FAILED")
	}
	if revoked {
		return nil, domain.ErrInvalidToken
	}

	user, err := r.users.GetByID(ctx, claims.PrincipalID())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrPrincipalNotFound
		}
		return nil, wrap(err, "identity", "PRINCIPAL_LOOKUP_FAILED", "principal_id", claims.PrincipalID())
	}
	return user.Public(), nil
}
