package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"mps-dashboard/internal/config"
	"mps-dashboard/internal/cookie"
	"mps-dashboard/internal/guard"
	"mps-dashboard/internal/handler"
	"mps-dashboard/internal/middleware"
	"mps-dashboard/internal/session"
)

const loginPath = "/login"

type Handlers struct {
	Auth    *handler.AuthHandler
	Audit   *handler.AuditHandler
	Proxy   *handler.ProxyHandler
	Pages   *handler.PageHandler
	Health  *handler.HealthHandler
	Metrics http.Handler
}

type sessionReader interface {
	Get(reader cookie.Reader) *session.Record
}

func New(cfg *config.Config, guarantor *guard.Guarantor, sessions sessionReader, h Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	if cfg.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", h.Health.Live)
	r.Get("/health/ready", h.Health.Ready)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	r.Get(loginPath, h.Pages.Login)
	r.Post(loginPath, h.Pages.SubmitLogin)
	r.Post("/logout", h.Pages.SubmitLogout)
	r.With(guarantor.RequirePage(loginPath)).Get("/", h.Pages.Dashboard)

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/login", h.Auth.Login)
			auth.Post("/logout", h.Auth.Logout)
			auth.Get("/session", h.Auth.Session)
			auth.Post("/refresh", h.Auth.Refresh)
			auth.With(middleware.RequireSession(sessions)).Get("/events", h.Audit.List)
		})

		api.Handle("/backend/*", h.Proxy)
	})

	return r
}
