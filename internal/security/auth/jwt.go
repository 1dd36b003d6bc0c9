package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/agrotrack/plotmanager/internal/domain"
)

// SessionTTL is the fixed lifetime of an issued session token
const SessionTTL = time.Hour

// CookieName is the session cookie carrying the token
const CookieName = "token"

const (
	EnvironmentDev  = "dev"
	EnvironmentProd = "prod"
)

// SessionConfig holds everything the token manager needs. Environment
// only affects cookie attributes.
type SessionConfig struct {
	Secret      string
	Issuer      string
	Environment string
}

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// PrincipalID returns the subject the token was issued for
func (c *Claims) PrincipalID() string {
	return c.Subject
}

type TokenManager struct {
	secret []byte
	issuer string
	prod   bool
	now    func() time.Time
}

func NewTokenManager(cfg SessionConfig) (*TokenManager, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token manager: secret is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "plotmanager"
	}
	return &TokenManager{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		prod:   cfg.Environment == EnvironmentProd,
		now:    time.Now,
	}, nil
}

// WithClock replaces the time source used for issuing and verifying.
func (tm *TokenManager) WithClock(now func() time.Time) *TokenManager {
	tm.now = now
	return tm
}

// Issue signs a token for principalID valid for SessionTTL
func (tm *TokenManager) Issue(principalID string, role domain.Role) (string, time.Time, error) {
	if principalID == "" {
		return "", time.Time{}, fmt.Errorf("principal id required")
	}
	issuedAt := jwt.NewNumericDate(tm.now())
	expiresAt := jwt.NewNumericDate(issuedAt.Add(SessionTTL))
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			ID:        uuid.NewString(),
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
			Issuer:    tm.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt.Time, nil
}

// Verify checks signature, algorithm, issuer and expiry. Every failure
// matches domain.ErrInvalidToken.
func (tm *TokenManager) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", domain.ErrInvalidToken)
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tm.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: invalid token claims", domain.ErrInvalidToken)
	}
	return claims, nil
}

// SessionCookie wraps token in the session cookie. Production cookies are
// Secure with SameSite=None so cross-site frontends can send them.
func (tm *TokenManager) SessionCookie(token string, expiresAt time.Time) *http.Cookie {
	c := tm.baseCookie()
	c.Value = token
	c.Expires = expiresAt
	c.MaxAge = int(SessionTTL.Seconds())
	return c
}

// ClearSessionCookie returns a cookie that removes the session cookie
func (tm *TokenManager) ClearSessionCookie() *http.Cookie {
	c := tm.baseCookie()
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	return c
}

func (tm *TokenManager) baseCookie() *http.Cookie {
	c := &http.Cookie{
		Name:     CookieName,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if tm.prod {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

// ExtractToken pulls the token out of an "Authorization: Bearer <token>" header
func ExtractToken(authHeader string) (string, error) {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("invalid authorization header")
	}
	return parts[1], nil
}
