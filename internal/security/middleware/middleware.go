package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/agrotrack/plotmanager/internal/domain"
	"github.com/agrotrack/plotmanager/internal/security/audit"
	"github.com/agrotrack/plotmanager/internal/security/auth"
)

// IdentityResolver turns a raw session token into the current principal
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*domain.User, error)
}

type principalContextKey struct{}

// principalSlot lets outer middleware observe the principal that an inner
// Authenticate resolved.
type principalSlot struct {
	user *domain.User
}

type principalSlotKey struct{}

// TokenFromRequest returns the session token, preferring the cookie over
// the Authorization header. Returns "" when neither carries one.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(auth.CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, err := auth.ExtractToken(h); err == nil {
			return tok
		}
	}
	return ""
}

// Authenticate resolves the principal once per request and stores it in the
// request context. Failures answer 401 without reaching next.
func Authenticate(resolver IdentityResolver, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := resolver.Resolve(r.Context(), TokenFromRequest(r))
			if err != nil {
				status, msg := authFailure(err)
				if status == http.StatusInternalServerError {
					log.ErrorContext(r.Context(), "identity resolution failed",
						slog.String("request_id", GetRequestID(r.Context())),
						slog.String("error", err.Error()),
					)
				}
				writeJSONError(w, status, msg)
				return
			}

			if slot, ok := r.Context().Value(principalSlotKey{}).(*principalSlot); ok {
				slot.user = principal
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

func authFailure(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, domain.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid or expired token"
	case errors.Is(err, domain.ErrPrincipalNotFound):
		return http.StatusUnauthorized, "user not found"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// WithPrincipal returns a context carrying principal
func WithPrincipal(ctx context.Context, principal *domain.User) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext returns the authenticated principal, or nil
func PrincipalFromContext(ctx context.Context) *domain.User {
	if u, ok := ctx.Value(principalContextKey{}).(*domain.User); ok {
		return u
	}
	return nil
}

// Audit records every mutating request and every 401/403 once the inner
// handlers have finished.
func Audit(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slot := &principalSlot{}
			ctx := context.WithValue(r.Context(), principalSlotKey{}, slot)
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r.WithContext(ctx))

			principalID := ""
			if slot.user != nil {
				principalID = slot.user.ID
			}
			switch {
			case rec.status == http.StatusUnauthorized || rec.status == http.StatusForbidden:
				auditLog.LogDenied(ctx, principalID, "api", r.URL.Path, http.StatusText(rec.status))
			case r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodOptions:
				outcome := "success"
				if rec.status >= 400 {
					outcome = "failure"
				}
				auditLog.LogAction(ctx, principalID, r.Method, "api", r.URL.Path, outcome, "")
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
