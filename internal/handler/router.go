package handler

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/heptiolabs/healthcheck"

	"github.com/openclaw/session-gateway-go/internal/config"
	"github.com/openclaw/session-gateway-go/internal/metrics"
	"github.com/openclaw/session-gateway-go/internal/middleware"
)

type RouterDeps struct {
	Gateway *GatewayHandler
	Events  *EventsHandler
	Health  *HealthHandler
	Probes  healthcheck.Handler
	Metrics *metrics.Metrics
	Auth    *middleware.AuthMiddleware
}

func NewRouter(d RouterDeps) chi.Router {
	bodyLimit := middleware.NewBodyLimitMiddleware(config.MaxMessageBodySize)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(d.Metrics))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", d.Health.Health)
	if d.Probes != nil {
		r.Get("/live", d.Probes.LiveEndpoint)
		r.Get("/ready", d.Probes.ReadyEndpoint)
	}
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if d.Auth != nil {
			r.Use(d.Auth.Handler)
		}

		r.Get("/sessions/{id}/events", d.Events.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Use(bodyLimit.Handler)

			r.Get("/get-qr/{id}", d.Gateway.GetQR)
			r.Get("/get-fresh-qr/{id}", d.Gateway.GetFreshQR)
			r.Post("/logout", d.Gateway.Logout)
			r.Post("/clean-expired", d.Gateway.CleanExpired)
			r.Post("/send-message", d.Gateway.SendMessage)
		})
	})

	return r
}
