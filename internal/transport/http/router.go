package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-passwordless/internal/application/auth"
	"github.com/go-passwordless/internal/config"
	"github.com/go-passwordless/internal/transport/http/handler"
	appmiddleware "github.com/go-passwordless/internal/transport/http/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	fixedCode := ""
	if cfg.IsDevelopment() {
		fixedCode = cfg.FixedVerificationCode
	}
	authSvc := auth.NewService(auth.ServiceDeps{
		Verifications: deps.Verifications,
		UserRepo:      deps.UserRepo,
		Sessions:      deps.Sessions,
		Sender:        deps.Sender,
		FixedCode:     fixedCode,
		SessionTTL:    cfg.SessionTTL,
	})

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(authSvc)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/auth/send-code", authH.SendCode)
		r.Post("/auth/verify-code", authH.VerifyCode)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Auth(deps.Sessions))

			r.Get("/auth/me", authH.Me)
		})
	})

	return r
}
