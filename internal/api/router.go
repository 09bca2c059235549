package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/barangayhub/portal/internal/api/handler"
	"github.com/barangayhub/portal/internal/api/middleware"
	"github.com/barangayhub/portal/internal/auth"
	"github.com/barangayhub/portal/internal/obs"
	"github.com/barangayhub/portal/internal/role"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	DBPinger       handler.DBPinger
	Version        string
	AuthService    *auth.Service
	Gatherer       prometheus.Gatherer
	SignInRate     float64
	SignInBurst    int
	EventKeepAlive time.Duration
	// TrustProxy takes the client address from forwarding headers. Enable
	// only behind a proxy that sets them.
	TrustProxy bool
}

// NewRouter creates and configures a Chi router with all middleware and routes.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	if deps.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(obs.Instrument)
	r.Use(chimiddleware.Logger)

	healthHandler := handler.NewHealthHandler(deps.DBPinger, deps.Version)
	r.Get("/health", healthHandler.ServeHTTP)

	if deps.Gatherer != nil {
		r.Method("GET", "/metrics", obs.Handler(deps.Gatherer))
	}

	if deps.AuthService == nil {
		return r
	}

	authHandler := handler.NewAuthHandler(deps.AuthService, deps.EventKeepAlive)
	profileHandler := handler.NewProfileHandler(deps.AuthService)
	authenticate := middleware.Auth(deps.AuthService)

	rate, burst := deps.SignInRate, deps.SignInBurst
	if rate <= 0 {
		rate = 5
	}
	if burst <= 0 {
		burst = 10
	}

	r.Route("/auth/v1", func(r chi.Router) {
		r.With(middleware.RateLimit(rate, burst)).Post("/signup", authHandler.SignUp)
		r.With(middleware.RateLimit(rate, burst)).Post("/token", authHandler.Token)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/logout", authHandler.Logout)
			r.Post("/refresh", authHandler.Refresh)
			r.Get("/user", authHandler.User)
			r.Get("/events", authHandler.Events)
		})
	})

	r.Route("/rest/v1/profiles", func(r chi.Router) {
		r.Use(authenticate)
		r.Get("/{id}", profileHandler.Get)
		r.With(middleware.RequireRole(role.Admin)).Patch("/{id}/role", profileHandler.AssignRole)
	})

	return r
}
