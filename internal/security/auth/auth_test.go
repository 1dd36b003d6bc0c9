package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrotrack/plotmanager/internal/domain"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

func newManager(t *testing.T, env string, clock *testClock) *TokenManager {
	t.Helper()
	tm, err := NewTokenManager(SessionConfig{Secret: "test-secret", Issuer: "plotmanager-test", Environment: env})
	require.NoError(t, err)
	return tm.WithClock(clock.Now)
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(4)

	a, err := h.Hash("hunter22")
	require.NoError(t, err)
	b, err := h.Hash("hunter22")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "hashes must be salted")
	assert.NotContains(t, a, "hunter22")
	assert.True(t, h.Verify("hunter22", a))
	assert.False(t, h.Verify("hunter23", a))
	assert.False(t, h.Verify("hunter22", "not-a-bcrypt-hash"))
}

func TestIssueAndVerify(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	tm := newManager(t, EnvironmentDev, clock)

	token, expiresAt, err := tm.Issue("user-1", domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, clock.t.Add(time.Hour), expiresAt)

	claims, err := tm.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.PrincipalID())
	assert.Equal(t, "admin", claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestVerifyExpiry(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	tm := newManager(t, EnvironmentDev, clock)

	token, _, err := tm.Issue("user-1", domain.RoleUser)
	require.NoError(t, err)

	clock.t = clock.t.Add(time.Hour - time.Second)
	_, err = tm.Verify(token)
	assert.NoError(t, err)

	clock.t = clock.t.Add(time.Second)
	_, err = tm.Verify(token)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestVerifyRejectsTampering(t *testing.T) {
	clock := &testClock{t: time.Now().Truncate(time.Second)}
	tm := newManager(t, EnvironmentDev, clock)

	other, err := NewTokenManager(SessionConfig{Secret: "other-secret", Issuer: "plotmanager-test"})
	require.NoError(t, err)
	foreign, _, err := other.WithClock(clock.Now).Issue("user-1", domain.RoleUser)
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "user-1",
		"iss": "plotmanager-test",
		"exp": clock.t.Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	wrongIssuer, err := NewTokenManager(SessionConfig{Secret: "test-secret", Issuer: "someone-else"})
	require.NoError(t, err)
	otherIss, _, err := wrongIssuer.WithClock(clock.Now).Issue("user-1", domain.RoleUser)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":          "",
		"garbage":        "not.a.token",
		"wrong secret":   foreign,
		"alg none":       noneToken,
		"wrong issuer":   otherIss,
		"truncated json": "eyJhbGciOiJIUzI1NiJ9.eyJzdWIi",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tm.Verify(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidToken))
		})
	}
}

func TestSessionCookieAttributes(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	exp := clock.t.Add(SessionTTL)

	dev := newManager(t, EnvironmentDev, clock).SessionCookie("tok", exp)
	assert.Equal(t, CookieName, dev.Name)
	assert.Equal(t, "tok", dev.Value)
	assert.True(t, dev.HttpOnly)
	assert.False(t, dev.Secure)
	assert.Equal(t, http.SameSiteLaxMode, dev.SameSite)
	assert.Equal(t, "/", dev.Path)
	assert.Equal(t, 3600, dev.MaxAge)

	prod := newManager(t, EnvironmentProd, clock).SessionCookie("tok", exp)
	assert.True(t, prod.HttpOnly)
	assert.True(t, prod.Secure)
	assert.Equal(t, http.SameSiteNoneMode, prod.SameSite)

	cleared := newManager(t, EnvironmentProd, clock).ClearSessionCookie()
	assert.Equal(t, -1, cleared.MaxAge)
	assert.Empty(t, cleared.Value)
	assert.True(t, cleared.Secure)
}

func TestExtractToken(t *testing.T) {
	tok, err := ExtractToken("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", tok)

	_, err = ExtractToken("Basic dXNlcjpwYXNz")
	assert.Error(t, err)
	_, err = ExtractToken("Bearer")
	assert.Error(t, err)
}

func TestMemoryRevocationList(t *testing.T) {
	ctx := context.Background()
	clock := &testClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewMemoryRevocationList().WithClock(clock.Now)

	require.NoError(t, rl.Revoke(ctx, "jti-1", clock.t.Add(time.Minute)))
	revoked, err := rl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, _ = rl.IsRevoked(ctx, "jti-2")
	assert.False(t, revoked)

	clock.t = clock.t.Add(2 * time.Minute)
	revoked, _ = rl.IsRevoked(ctx, "jti-1")
	assert.False(t, revoked, "entries lapse once the token would have expired")

	require.NoError(t, rl.Revoke(ctx, "jti-3", clock.t.Add(-time.Second)))
	revoked, _ = rl.IsRevoked(ctx, "jti-3")
	assert.False(t, revoked)

	assert.Equal(t, 1, rl.Purge(), "only the lapsed jti-1 was stored")
	assert.Equal(t, 0, rl.Purge())
}
