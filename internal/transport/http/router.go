package http

import (
	"net/http"

	"github.com/go-auth-otp/internal/application/auth"
	"github.com/go-auth-otp/internal/application/otp"
	"github.com/go-auth-otp/internal/application/session"
	"github.com/go-auth-otp/internal/config"
	"github.com/go-auth-otp/internal/transport/http/handler"
	appmiddleware "github.com/go-auth-otp/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	if deps.Collector != nil {
		r.Use(appmiddleware.Metrics(deps.Collector))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	sessionSvc := session.NewService(session.ServiceDeps{
		UserRepo: deps.UserRepo,
		Codec:    deps.Codec,
		Metrics:  deps.Collector,
	})
	otpSvc := otp.NewService(otp.ServiceDeps{
		Store:    deps.CredStore,
		Sender:   deps.SMSSender,
		UserRepo: deps.UserRepo,
		Metrics:  deps.Collector,
	})
	authSvc := auth.NewService(auth.ServiceDeps{
		UserRepo:     deps.UserRepo,
		Store:        deps.CredStore,
		Codec:        deps.Codec,
		Mailer:       deps.Mailer,
		ResetURLBase: cfg.ResetURLBase,
	})

	authMw := appmiddleware.Auth(sessionSvc)

	// 5 requests/second, burst of 10 — applied to the endpoints that mint or
	// test credentials.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	healthH := handler.NewHealthHandler()
	sessionH := handler.NewSessionHandler(sessionSvc)
	userH := handler.NewUserHandler(authSvc)
	otpH := handler.NewOTPHandler(otpSvc)
	pwH := handler.NewPasswordRecoveryHandler(authSvc)
	emailH := handler.NewEmailConfirmHandler(authSvc)

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/users", userH.Register)
		r.With(sensitiveRL.Limit).Post("/sessions/login", sessionH.Login)
		r.Post("/sessions/refresh", sessionH.Refresh)
		r.Post("/sessions/logout", sessionH.Logout)
		r.With(sensitiveRL.Limit).Post("/otp/{action}", otpH.Action)
		r.With(sensitiveRL.Limit).Post("/password-recovery/{action}", pwH.Action)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/sessions", sessionH.GetCurrent)
			r.Post("/confirm-email/{action}", emailH.Action)
		})
	})

	return r
}
