package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/agrotrack/plotmanager/internal/domain"
	"github.com/agrotrack/plotmanager/internal/repository/memory"
	"github.com/agrotrack/plotmanager/internal/security"
	"github.com/agrotrack/plotmanager/internal/security/audit"
	"github.com/agrotrack/plotmanager/internal/security/auth"
)

type fixture struct {
	store    *memory.Store
	tokens   *auth.TokenManager
	revoked  *auth.MemoryRevocationList
	auth     *AuthService
	identity *IdentityResolver
	plots    *PlotService
	users    *UserService
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.NewStore(),
		now:   time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	tokens, err := auth.NewTokenManager(auth.SessionConfig{Secret: "test-secret", Environment: auth.EnvironmentDev})
	require.NoError(t, err)
	f.tokens = tokens.WithClock(clock)
	f.revoked = auth.NewMemoryRevocationList().WithClock(clock)

	guard := security.NewGuard(nil)
	auditLog := audit.NewLogger(nil)
	statuses := domain.NewStatusSet(nil, "unsown")

	f.auth = NewAuthService(f.store.Users(), auth.NewBcryptHasher(bcrypt.MinCost), f.tokens, f.revoked, auditLog, nil)
	f.identity = NewIdentityResolver(f.tokens, f.store.Users(), f.revoked, nil)
	f.plots = NewPlotService(f.store.Plots(), guard, statuses, auditLog, nil)
	f.users = NewUserService(f.store.Users(), f.store.Profiles(), guard, auditLog, nil)
	return f
}

func registerInput(username string) RegisterInput {
	return RegisterInput{
		Username:  username,
		Email:     username + "@example.com",
		Password:  "secret1",
		FirstName: "Ana",
		LastName:  "Diaz",
	}
}

func (f *fixture) register(t *testing.T, username string) *domain.User {
	t.Helper()
	u, err := f.auth.Register(context.Background(), registerInput(username))
	require.NoError(t, err)
	return u
}

func (f *fixture) admin(t *testing.T, username string) *domain.User {
	t.Helper()
	u, err := f.auth.CreateAdmin(context.Background(), registerInput(username))
	require.NoError(t, err)
	return u
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u := f.register(t, "alice")
	assert.Equal(t, domain.RoleUser, u.Role)
	assert.Empty(t, u.PasswordHash, "public view must not carry the hash")

	stored, err := f.store.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", stored.PasswordHash)

	profile, err := f.store.Profiles().GetByUserID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", profile.FirstName)

	res, err := f.auth.Login(ctx, "alice", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, f.now.Add(auth.SessionTTL), res.ExpiresAt)
	assert.Equal(t, u.ID, res.User.ID)
	assert.Empty(t, res.User.PasswordHash)
}

func TestRegisterIgnoresRequestedRole(t *testing.T) {
	f := newFixture(t)
	in := registerInput("mallory")
	in.Role = domain.RoleAdmin

	u, err := f.auth.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, u.Role)

	f.auth.WithOpenRoleRegistration(true)
	in = registerInput("trusted")
	in.Role = domain.RoleAdmin
	u, err = f.auth.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, u.Role)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	in := RegisterInput{Username: "ab", Email: "nope", Password: "123", FirstName: "A"}

	_, err := f.auth.Register(context.Background(), in)
	require.ErrorIs(t, err, domain.ErrValidation)

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	for _, field := range []string{"username", "email", "password", "firstName", "lastName"} {
		assert.Contains(t, verr.Fields, field)
	}
}

func TestRegisterDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")

	in := registerInput("alice")
	in.Email = "other@example.com"
	_, err := f.auth.Register(ctx, in)
	var dup *domain.DuplicateError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "username", dup.Field)

	in = registerInput("bob")
	in.Email = "alice@example.com"
	_, err = f.auth.Register(ctx, in)
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "email", dup.Field)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")

	cases := []struct{ name, username, password string }{
		{"wrong password", "alice", "wrong-one"},
		{"unknown user", "nobody", "secret1"},
		{"empty password", "alice", ""},
		{"empty username", "", "secret1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.auth.Login(ctx, tc.username, tc.password)
			assert.Equal(t, domain.ErrInvalidCredentials, err)
		})
	}
}

type countingHasher struct {
	auth.PasswordHasher
	verifies int
}

func (h *countingHasher) Verify(plaintext, hash string) bool {
	h.verifies++
	return h.PasswordHasher.Verify(plaintext, hash)
}

func TestLoginUnknownUserStillVerifiesPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hasher := &countingHasher{PasswordHasher: auth.NewBcryptHasher(bcrypt.MinCost)}
	svc := NewAuthService(f.store.Users(), hasher, f.tokens, f.revoked, audit.NewLogger(nil), nil)

	_, err := svc.Register(ctx, registerInput("alice"))
	require.NoError(t, err)

	_, err = svc.Login(ctx, "nobody", "secret1")
	assert.Equal(t, domain.ErrInvalidCredentials, err)
	assert.Equal(t, 1, hasher.verifies, "unknown usernames pay the same hashing cost")

	_, err = svc.Login(ctx, "alice", "wrong-one")
	assert.Equal(t, domain.ErrInvalidCredentials, err)
	assert.Equal(t, 2, hasher.verifies)
}

func TestLoginRejectsDeletedPrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "alice")
	require.NoError(t, f.store.Users().SoftDelete(ctx, u.ID))

	_, err := f.auth.Login(ctx, "alice", "secret1")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")
	res, err := f.auth.Login(ctx, "alice", "secret1")
	require.NoError(t, err)

	_, err = f.identity.Resolve(ctx, res.Token)
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx, res.Token))
	_, err = f.identity.Resolve(ctx, res.Token)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	require.NoError(t, f.auth.Logout(ctx, res.Token), "logout is idempotent")
	require.NoError(t, f.auth.Logout(ctx, ""))
	require.NoError(t, f.auth.Logout(ctx, "garbage"))
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "alice")

	err := f.auth.ChangePassword(ctx, u.ID, "wrong-one", "newsecret")
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "currentPassword")

	err = f.auth.ChangePassword(ctx, u.ID, "secret1", "123")
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "newPassword")

	require.NoError(t, f.auth.ChangePassword(ctx, u.ID, "secret1", "newsecret"))

	_, err = f.auth.Login(ctx, "alice", "secret1")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = f.auth.Login(ctx, "alice", "newsecret")
	assert.NoError(t, err)
}

func TestIdentityResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "alice")
	res, err := f.auth.Login(ctx, "alice", "secret1")
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		got, err := f.identity.Resolve(ctx, res.Token)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Empty(t, got.PasswordHash)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := f.identity.Resolve(ctx, "")
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("malformed token", func(t *testing.T) {
		_, err := f.identity.Resolve(ctx, "not.a.jwt")
		assert.ErrorIs(t, err, domain.ErrInvalidToken)
	})

	t.Run("role is read from the store", func(t *testing.T) {
		stored, err := f.store.Users().GetByID(ctx, u.ID)
		require.NoError(t, err)
		stored.Role = domain.RoleAdmin
		require.NoError(t, f.store.Users().Update(ctx, stored))

		got, err := f.identity.Resolve(ctx, res.Token)
		require.NoError(t, err)
		assert.Equal(t, domain.RoleAdmin, got.Role)
	})

	t.Run("deleted principal", func(t *testing.T) {
		require.NoError(t, f.store.Users().SoftDelete(ctx, u.ID))
		_, err := f.identity.Resolve(ctx, res.Token)
		assert.ErrorIs(t, err, domain.ErrPrincipalNotFound)
	})
}

func TestIdentityResolveExpiredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")
	res, err := f.auth.Login(ctx, "alice", "secret1")
	require.NoError(t, err)

	f.now = f.now.Add(auth.SessionTTL)
	_, err = f.identity.Resolve(ctx, res.Token)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}
