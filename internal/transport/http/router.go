package http

import (
	"net/http"

	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/transport/http/handler"
	appmiddleware "github.com/go-auth-nosql/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. The returned limiter
// should have its Cleanup loop started by the caller.
func NewRouter(cfg *config.Config, deps *Deps) (http.Handler, *appmiddleware.RateLimiter) {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(appmiddleware.RequestMeta(cfg.TrustProxy))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", appmiddleware.CSRFHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authMw := appmiddleware.Auth(deps.JWTProvider, deps.Sessions)

	// 5 requests/second, burst of 10, in front of the public credential routes.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	healthH := handler.NewHealthHandler(deps.Store.Pinger)
	authH := handler.NewAuthHandler(deps.Auth, deps.Sessions, cfg.SecureCookies)
	sessionH := handler.NewSessionHandler(deps.Sessions, deps.Audit)
	adminH := handler.NewAdminHandler(deps.Limiter, deps.Audit)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health", healthH.Health)
		r.Get("/csrf", authH.CSRFToken)

		r.Group(func(r chi.Router) {
			r.Use(sensitiveRL.Limit)

			r.Post("/signup", authH.Signup)
			r.Post("/login/email", authH.LoginEmailOnly)
			r.Post("/login", authH.Login)
			r.Post("/verify-email", authH.VerifyEmail)
			r.Get("/verify-email", authH.ResendVerification)
			r.Post("/password-reset", authH.RequestPasswordReset)
			r.Put("/password-reset", authH.CompletePasswordReset)
		})

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/sessions", sessionH.GetCurrent)
			r.Post("/sessions/logout", sessionH.Logout)

			r.With(appmiddleware.CSRF).Post("/change-password", authH.ChangePassword)
			r.With(appmiddleware.CSRF).Post("/upgrade-account", authH.UpgradeAccount)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))
				r.Use(appmiddleware.RequireVerifiedEmail)

				r.Post("/admin/ip-blocks", adminH.BlockIP)
				r.Delete("/admin/ip-blocks", adminH.UnblockIP)
				r.Get("/admin/audit-logs", adminH.AuditLogs)
			})
		})
	})

	return r, sensitiveRL
}
