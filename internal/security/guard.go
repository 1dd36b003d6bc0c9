package security

import (
	"fmt"
	"log/slog"

	"github.com/agrotrack/plotmanager/internal/domain"
)

// Guard makes every authorization decision in the service layer. A nil
// principal always yields domain.ErrUnauthenticated.
type Guard struct {
	logger *slog.Logger
}

// NewGuard creates a new guard
func NewGuard(logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{logger: logger}
}

// Require checks that principal's role grants permission
func (g *Guard) Require(principal *domain.User, permission Permission) error {
	if principal == nil {
		return domain.ErrUnauthenticated
	}
	if !HasPermission(principal.Role, permission) {
		g.logger.Warn("permission denied",
			slog.String("principal_id", principal.ID),
			slog.String("role", string(principal.Role)),
			slog.String("permission", string(permission)),
		)
		return fmt.Errorf("%w: %s role cannot %s", domain.ErrForbidden, principal.Role, permission)
	}
	return nil
}

// AuthorizePlotMutation allows admins on any plot and users on their own.
func (g *Guard) AuthorizePlotMutation(principal *domain.User, plot *domain.Plot) error {
	return g.authorizeOwned(principal, "plot", plot.ID, plot.OwnerID, PermManageAnyPlot)
}

// AuthorizePlotRead applies the same owner-or-admin rule to single reads.
func (g *Guard) AuthorizePlotRead(principal *domain.User, plot *domain.Plot) error {
	return g.authorizeOwned(principal, "plot", plot.ID, plot.OwnerID, PermManageAnyPlot)
}

// AuthorizeUserManagement allows a principal to manage itself, and admins
// to manage anyone.
func (g *Guard) AuthorizeUserManagement(principal *domain.User, targetUserID string) error {
	return g.authorizeOwned(principal, "user", targetUserID, targetUserID, PermManageAnyUser)
}

func (g *Guard) authorizeOwned(principal *domain.User, resourceType, resourceID, ownerID string, bypass Permission) error {
	if principal == nil {
		return domain.ErrUnauthenticated
	}
	if HasPermission(principal.Role, bypass) {
		return nil
	}
	if ownerID != principal.ID {
		g.logger.Warn("resource access denied",
			slog.String("principal_id", principal.ID),
			slog.String("resource_type", resourceType),
			slog.String("resource_id", resourceID),
			slog.String("owner_id", ownerID),
		)
		return fmt.Errorf("%w: you do not own this %s", domain.ErrForbidden, resourceType)
	}
	return nil
}
