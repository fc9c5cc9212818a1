package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexboard/lexboard/internal/config"
	intmw "github.com/lexboard/lexboard/internal/middleware"
	"github.com/lexboard/lexboard/pkg/health"
	"github.com/lexboard/lexboard/pkg/middleware"
)

// Deps collects everything the router mounts.
type Deps struct {
	Auth    *AuthHandler
	Profile *ProfileHandler
	Proxy   *Proxy
	Health  *health.Handler
	Config  *config.Config
	Logger  *slog.Logger
}

// NewRouter assembles the gateway's route tree.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.RequestLogging(d.Logger))
	r.Use(middleware.PrometheusMetrics("session-gateway"))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   d.Config.CORSAllowedOrigins,
		AllowCredentials: true,
		Environment:      d.Config.Environment,
	}))

	r.Get("/health/live", d.Health.LivenessHandler())
	r.Get("/health/ready", d.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Use(intmw.RateLimit(d.Config.RateLimitRPS, d.Config.RateLimitBurst, d.Logger))
		r.Post("/login", d.Auth.Login)
		r.Post("/otp/send", d.Auth.SendOTP)
		r.Post("/otp/verify", d.Auth.VerifyOTP)
		r.Post("/logout", d.Auth.Logout)
	})

	r.Get("/session", d.Auth.SessionState)
	r.Post("/session/reset", d.Auth.ResetSession)
	r.Get("/me", d.Profile.Me)

	r.Route("/api", func(r chi.Router) {
		r.HandleFunc("/*", d.Proxy.Forward)
	})

	return r
}
