package handler

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/agrotrack/plotmanager/internal/observability/metrics"
	"github.com/agrotrack/plotmanager/internal/security/audit"
	"github.com/agrotrack/plotmanager/internal/security/auth"
	"github.com/agrotrack/plotmanager/internal/security/middleware"
	"github.com/agrotrack/plotmanager/internal/service"
)

// Deps is everything the HTTP surface needs
type Deps struct {
	Auth               *service.AuthService
	Users              *service.UserService
	Plots              *service.PlotService
	Identity           middleware.IdentityResolver
	Tokens             *auth.TokenManager
	Audit              *audit.Logger
	Store              Pinger
	Redis              Pinger
	CORSAllowedOrigins []string
	Logger             *slog.Logger
}

// NewRouter builds the API routes and wraps them in the middleware chain
func NewRouter(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}

	authH := NewAuthHandler(d.Auth, d.Users, d.Tokens, log)
	plotH := NewPlotHandler(d.Plots, log)
	userH := NewUserHandler(d.Users, log)
	healthH := NewHealthHandler(d.Store, d.Redis, log)

	authn := middleware.Authenticate(d.Identity, log)
	protected := func(h http.HandlerFunc) http.Handler { return authn(h) }

	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("POST /api/register", authH.Register)
	mux.HandleFunc("POST /api/login", authH.Login)
	mux.HandleFunc("POST /api/logout", authH.Logout)
	mux.HandleFunc("GET /healthz", healthH.Health)
	mux.HandleFunc("GET /readyz", healthH.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Session
	mux.Handle("GET /api/me", protected(authH.Me))
	mux.Handle("GET /api/my-profile", protected(authH.MyProfile))
	mux.Handle("POST /api/change-password", protected(authH.ChangePassword))

	// Plots
	mux.Handle("GET /api/my-plots", protected(plotH.ListMine))
	mux.Handle("GET /api/plots/me", protected(plotH.ListMine))
	mux.Handle("GET /api/plots", protected(plotH.ListAll))
	mux.Handle("POST /api/plots", protected(plotH.Create))
	mux.Handle("PUT /api/plots", protected(plotH.Create))
	mux.Handle("GET /api/plots/{id}", protected(plotH.Get))
	mux.Handle("PUT /api/plots/{id}", protected(plotH.Update))
	mux.Handle("PATCH /api/plots/{id}", protected(plotH.Update))
	mux.Handle("DELETE /api/plots/{id}", protected(plotH.Delete))

	// Users
	mux.Handle("GET /api/users", protected(userH.List))
	mux.Handle("GET /api/users/{id}", protected(userH.Get))
	mux.Handle("PUT /api/users/{id}", protected(userH.Update))
	mux.Handle("PATCH /api/users/{id}", protected(userH.Update))
	mux.Handle("DELETE /api/users/{id}", protected(userH.Delete))
	mux.Handle("GET /api/users/{id}/profile", protected(userH.GetProfile))
	mux.Handle("PUT /api/users/{id}/profile", protected(userH.UpdateProfile))
	mux.Handle("PATCH /api/users/{id}/profile", protected(userH.UpdateProfile))

	// Chain, outermost first: tracing -> request ID -> metrics -> CORS ->
	// content type -> audit -> mux
	var h http.Handler = mux
	h = middleware.Audit(d.Audit)(h)
	h = middleware.RequireJSON(log)(h)
	h = middleware.CORS(d.CORSAllowedOrigins)(h)
	h = metrics.HTTPMetricsMiddleware(h)
	h = middleware.RequestID(log)(h)
	return otelhttp.NewHandler(h, "plotmanager")
}
