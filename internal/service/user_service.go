package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/agrotrack/plotmanager/internal/domain"
	"github.com/agrotrack/plotmanager/internal/observability/metrics"
	"github.com/agrotrack/plotmanager/internal/security"
	"github.com/agrotrack/plotmanager/internal/security/audit"
)

// UserService manages principals and their profiles
type UserService struct {
	users    domain.UserRepository
	profiles domain.ProfileRepository
	guard    *security.Guard
	audit    *audit.Logger
	logger   *slog.Logger
}

func NewUserService(
	users domain.UserRepository,
	profiles domain.ProfileRepository,
	guard *security.Guard,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		users:    users,
		profiles: profiles,
		guard:    guard,
		audit:    auditLog,
		logger:   logger,
	}
}

// List returns every active principal with its profile. Admin only.
func (s *UserService) List(ctx context.Context, principal *domain.User) ([]*domain.UserDetail, error) {
	if err := s.guard.Require(principal, security.PermListUsers); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, wrap(err, "user_service", "USER_LIST_FAILED")
	}
	profiles, err := s.profiles.List(ctx)
	if err != nil {
		return nil, wrap(err, "user_service", "PROFILE_LIST_FAILED")
	}
	byUser := make(map[string]*domain.Profile, len(profiles))
	for _, p := range profiles {
		byUser[p.UserID] = p
	}

	out := make([]*domain.UserDetail, 0, len(users))
	for _, u := range users {
		out = append(out, &domain.UserDetail{User: u.Public(), Profile: byUser[u.ID]})
	}
	return out, nil
}

// Get returns the public view of any active principal with its profile
func (s *UserService) Get(ctx context.Context, principal *domain.User, id string) (*domain.UserDetail, error) {
	if err := s.guard.Require(principal, security.PermReadUserPublic); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, wrap(err, "user_service", "USER_GET_FAILED", "user_id", id)
	}
	profile, err := s.profiles.GetByUserID(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, wrap(err, "user_service", "PROFILE_GET_FAILED", "user_id", id)
	}
	return &domain.UserDetail{User: user.Public(), Profile: profile}, nil
}

// Update patches a principal. Principals may edit themselves; admins may
// edit anyone. Changing a role needs the assign-role permission.
func (s *UserService) Update(ctx context.Context, principal *domain.User, id string, patch domain.UserPatch) (*domain.User, error) {
	user, err := s.update(ctx, principal, id, patch)
	metrics.ObserveUserOperation("update", err)
	return user, err
}

func (s *UserService) update(ctx context.Context, principal *domain.User, id string, patch domain.UserPatch) (*domain.User, error) {
	if err := s.guard.AuthorizeUserManagement(principal, id); err != nil {
		if principal != nil {
			s.audit.LogDenied(ctx, principal.ID, "user", id, "not self")
		}
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, wrap(err, "user_service", "USER_GET_FAILED", "user_id", id)
	}

	if patch.Role.Set && patch.Role.Value != user.Role {
		if err := s.guard.Require(principal, security.PermAssignRole); err != nil {
			s.audit.LogDenied(ctx, principal.ID, "user", id, "role change")
			return nil, err
		}
	}
	if patch.Username.Set {
		patch.Username.Value = strings.TrimSpace(patch.Username.Value)
	}
	if patch.Email.Set {
		patch.Email.Value = strings.TrimSpace(patch.Email.Value)
	}

	before := *user
	patch.Apply(user)
	if err := domain.ValidateUser(user); err != nil {
		return nil, err
	}

	if user.Username != before.Username {
		taken, err := s.users.ExistsUsername(ctx, user.Username, id)
		if err != nil {
			return nil, wrap(err, "user_service", "USER_LOOKUP_FAILED")
		}
		if taken {
			return nil, &domain.DuplicateError{Field: "username"}
		}
	}
	if user.Email != before.Email {
		taken, err := s.users.ExistsEmail(ctx, user.Email, id)
		if err != nil {
			return nil, wrap(err, "user_service", "USER_LOOKUP_FAILED")
		}
		if taken {
			return nil, &domain.DuplicateError{Field: "email"}
		}
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, wrap(err, "user_service", "USER_UPDATE_FAILED", "user_id", id)
	}
	updated, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, wrap(err, "user_service", "USER_GET_FAILED", "user_id", id)
	}

	s.audit.LogUserChange(ctx, principal.ID, "update", id, "success")
	if updated.Role != before.Role {
		s.logger.InfoContext(ctx, "user role changed",
			slog.String("user_id", id),
			slog.String("from", string(before.Role)),
			slog.String("to", string(updated.Role)),
		)
	}
	return updated.Public(), nil
}

// SoftDelete hides a principal and its profile. Plots it owns are left
// in place.
func (s *UserService) SoftDelete(ctx context.Context, principal *domain.User, id string) error {
	err := s.softDelete(ctx, principal, id)
	metrics.ObserveUserOperation("delete", err)
	return err
}

func (s *UserService) softDelete(ctx context.Context, principal *domain.User, id string) error {
	if err := s.guard.AuthorizeUserManagement(principal, id); err != nil {
		if principal != nil {
			s.audit.LogDenied(ctx, principal.ID, "user", id, "not self")
		}
		return err
	}
	if err := s.users.SoftDelete(ctx, id); err != nil {
		return wrap(err, "user_service", "USER_DELETE_FAILED", "user_id", id)
	}
	s.audit.LogUserChange(ctx, principal.ID, "delete", id, "success")
	s.logger.InfoContext(ctx, "user deleted", slog.String("user_id", id))
	return nil
}

// GetProfile returns the profile of an active principal
func (s *UserService) GetProfile(ctx context.Context, principal *domain.User, userID string) (*domain.Profile, error) {
	if err := s.guard.Require(principal, security.PermReadUserPublic); err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, wrap(err, "user_service", "PROFILE_GET_FAILED", "user_id", userID)
	}
	return profile, nil
}

// UpdateProfile patches a profile under the same self-or-admin rule
func (s *UserService) UpdateProfile(ctx context.Context, principal *domain.User, userID string, patch domain.ProfilePatch) (*domain.Profile, error) {
	profile, err := s.updateProfile(ctx, principal, userID, patch)
	metrics.ObserveUserOperation("update_profile", err)
	return profile, err
}

func (s *UserService) updateProfile(ctx context.Context, principal *domain.User, userID string, patch domain.ProfilePatch) (*domain.Profile, error) {
	if err := s.guard.AuthorizeUserManagement(principal, userID); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.FirstName.Set {
		patch.FirstName.Value = strings.TrimSpace(patch.FirstName.Value)
	}
	if patch.LastName.Set {
		patch.LastName.Value = strings.TrimSpace(patch.LastName.Value)
	}

	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, wrap(err, "user_service", "PROFILE_GET_FAILED", "user_id", userID)
	}
	patch.Apply(profile)
	if err := domain.ValidateProfile(profile); err != nil {
		return nil, err
	}
	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, wrap(err, "user_service", "PROFILE_UPDATE_FAILED", "user_id", userID)
	}

	s.audit.LogUserChange(ctx, principal.ID, "update_profile", userID, "success")
	return s.profiles.GetByUserID(ctx, userID)
}
