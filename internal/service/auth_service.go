package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agrotrack/plotmanager/internal/domain"
	"github.com/agrotrack/plotmanager/internal/observability/metrics"
	"github.com/agrotrack/plotmanager/internal/security/audit"
	"github.com/agrotrack/plotmanager/internal/security/auth"
)

// AuthService handles authentication operations
type AuthService struct {
	users     domain.UserRepository
	hasher    auth.PasswordHasher
	tokens    *auth.TokenManager
	revoked   auth.RevocationList
	audit     *audit.Logger
	logger    *slog.Logger
	openRoles bool

	// decoyHash is verified on unknown usernames so both failure paths
	// pay the same hashing cost.
	decoyHash func() string
}

// NewAuthService creates a new authentication service
func NewAuthService(
	users domain.UserRepository,
	hasher auth.PasswordHasher,
	tokens *auth.TokenManager,
	revoked auth.RevocationList,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}

	s := &AuthService{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		revoked: revoked,
		audit:   auditLog,
		logger:  logger,
	}
	s.decoyHash = sync.OnceValue(func() string {
		hash, err := hasher.Hash(uuid.NewString())
		if err != nil {
			logger.Error("failed to prepare login decoy hash", slog.String("error", err.Error()))
		}
		return hash
	})
	return s
}

// WithOpenRoleRegistration makes Register honor a client-supplied role.
func (s *AuthService) WithOpenRoleRegistration(enabled bool) *AuthService {
	s.openRoles = enabled
	return s
}

// RegisterInput carries a registration request
type RegisterInput struct {
	Username              string      `json:"username"`
	Email                 string      `json:"email"`
	Password              string      `json:"password"`
	FirstName             string      `json:"firstName"`
	LastName              string      `json:"lastName"`
	Role                  domain.Role `json:"role"`
	EstablishmentLocation *string     `json:"establishmentLocation"`
	EstablishmentLat      *float64    `json:"establishmentLat"`
	EstablishmentLng      *float64    `json:"establishmentLng"`
}

// LoginResult represents login response
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *domain.User `json:"user"`
}

// Register creates a principal and its profile. The role is forced to
// user unless open role registration is enabled.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	role := domain.RoleUser
	if s.openRoles && in.Role != "" {
		role = in.Role
	}
	user, err := s.register(ctx, in, role)
	metrics.ObserveAuth("register", err)
	if err != nil {
		s.audit.LogSession(ctx, "", "register", "failure")
		return nil, err
	}
	s.audit.LogSession(ctx, user.ID, "register", "success")
	return user, nil
}

// CreateAdmin registers a principal with the admin role
func (s *AuthService) CreateAdmin(ctx context.Context, in RegisterInput) (*domain.User, error) {
	user, err := s.register(ctx, in, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.audit.LogUserChange(ctx, "", "create_admin", user.ID, "success")
	return user, nil
}

func (s *AuthService) register(ctx context.Context, in RegisterInput, role domain.Role) (*domain.User, error) {
	user := &domain.User{
		ID:                    uuid.NewString(),
		Username:              strings.TrimSpace(in.Username),
		Email:                 strings.TrimSpace(in.Email),
		Role:                  role,
		EstablishmentLocation: in.EstablishmentLocation,
		EstablishmentLat:      in.EstablishmentLat,
		EstablishmentLng:      in.EstablishmentLng,
	}
	profile := &domain.Profile{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
	}

	v := domain.NewValidationError()
	mergeValidation(v, domain.ValidateUser(user))
	mergeValidation(v, domain.ValidateProfile(profile))
	domain.ValidatePassword(v, "password", in.Password)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	taken, err := s.users.ExistsUsername(ctx, user.Username, "")
	if err != nil {
		return nil, wrap(err, "auth_service", "REGISTER_LOOKUP_FAILED")
	}
	if taken {
		return nil, &domain.DuplicateError{Field: "username"}
	}
	taken, err = s.users.ExistsEmail(ctx, user.Email, "")
	if err != nil {
		return nil, wrap(err, "auth_service", "REGISTER_LOOKUP_FAILED")
	}
	if taken {
		return nil, &domain.DuplicateError{Field: "email"}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to hash password", slog.String("error", err.Error()))
		return nil, wrap(err, "auth_service", "PASSWORD_HASH_FAILED")
	}
	user.PasswordHash = hash

	if err := s.users.CreateWithProfile(ctx, user, profile); err != nil {
		return nil, wrap(err, "auth_service", "REGISTER_FAILED", "username", user.Username)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return user.Public(), nil
}

// Login checks credentials and issues a session token. Every credential
// problem yields the same ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	res, err := s.login(ctx, strings.TrimSpace(username), password)
	metrics.ObserveAuth("login", err)
	if err != nil {
		s.audit.LogSession(ctx, "", "login", "failure")
		return nil, err
	}
	s.audit.LogSession(ctx, res.User.ID, "login", "success")
	return res, nil
}

func (s *AuthService) login(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.hasher.Verify(password, s.decoyHash())
			s.logger.InfoContext(ctx, "login attempt with unknown username")
			return nil, domain.ErrInvalidCredentials
		}
		return nil, wrap(err, "auth_service", "LOGIN_LOOKUP_FAILED")
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.logger.InfoContext(ctx, "login failed with wrong password", slog.String("user_id", user.ID))
		return nil, domain.ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, wrap(err, "auth_service", "TOKEN_ISSUE_FAILED")
	}

	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user.Public()}, nil
}

// Logout revokes token until it would expire. Missing or unverifiable
// tokens are a no-op, so repeated calls succeed.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil
	}
	err = s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
	metrics.ObserveAuth("logout", err)
	if err != nil {
		return wrap(err, "auth_service", "LOGOUT_FAILED")
	}
	s.audit.LogSession(ctx, claims.PrincipalID(), "logout", "success")
	return nil
}

// ChangePassword replaces the password after checking the current one
func (s *AuthService) ChangePassword(ctx context.Context, principalID, oldPassword, newPassword string) error {
	err := s.changePassword(ctx, principalID, oldPassword, newPassword)
	metrics.ObserveAuth("change_password", err)
	return err
}

func (s *AuthService) changePassword(ctx context.Context, principalID, oldPassword, newPassword string) error {
	v := domain.NewValidationError()
	if oldPassword == "" {
		v.Add("currentPassword", "current password is required")
	}
	domain.ValidatePassword(v, "newPassword", newPassword)
	if err := v.OrNil(); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrPrincipalNotFound
		}
		return wrap(err, "auth_service", "CHANGE_PASSWORD_LOOKUP_FAILED")
	}

	if !s.hasher.Verify(oldPassword, user.PasswordHash) {
		v.Add("currentPassword", "current password is incorrect")
		return v
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to hash new password", slog.String("error", err.Error()))
		return wrap(err, "auth_service", "PASSWORD_HASH_FAILED")
	}

	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to update user password", slog.String("error", err.Error()))
		return wrap(err, "auth_service", "CHANGE_PASSWORD_FAILED")
	}

	s.audit.LogUserChange(ctx, principalID, "change_password", principalID, "success")
	s.logger.InfoContext(ctx, "user changed password", slog.String("user_id", principalID))
	return nil
}
