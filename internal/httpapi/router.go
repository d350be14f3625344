package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/peeap/identity-service/internal/httpapi/handlers"
)

// RouterDeps defines router construction dependencies.
type RouterDeps struct {
	Authorize      *handlers.AuthorizeHandler
	Token          *handlers.TokenHandler
	SSO            *handlers.SSOHandler
	Admin          *handlers.AdminHandler
	RequireService func(http.Handler) http.Handler
	RequireAdmin   func(http.Handler) http.Handler
	RateLimitToken func(http.Handler) http.Handler
	RateLimitSSO   func(http.Handler) http.Handler
	MetricsHandler http.Handler
}

// NewRouter wires HTTP routes.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", handlers.Health)
	if deps.MetricsHandler != nil {
		r.Method("GET", "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/authorize", deps.Authorize.Authorize)
		if deps.RateLimitToken != nil {
			r.With(deps.RateLimitToken).Post("/token", deps.Token.Token)
			r.With(deps.RateLimitToken).Post("/revoke", deps.Token.Revoke)
		} else {
			r.Post("/token", deps.Token.Token)
			r.Post("/revoke", deps.Token.Revoke)
		}

		r.Route("/sso", func(r chi.Router) {
			if deps.RequireService != nil {
				r.Use(deps.RequireService)
			}
			if deps.RateLimitSSO != nil {
				r.Use(deps.RateLimitSSO)
			}
			r.Post("/issue", deps.SSO.Issue)
			r.Post("/exchange", deps.SSO.Exchange)
		})

		r.Route("/admin", func(r chi.Router) {
			if deps.RequireAdmin != nil {
				r.Use(deps.RequireAdmin)
			}
			r.Post("/clients", deps.Admin.RegisterClient)
			r.Get("/clients", deps.Admin.ListClients)
			r.Patch("/clients/{clientID}", deps.Admin.UpdateClient)
			r.Delete("/clients/{clientID}", deps.Admin.DeactivateClient)
			r.Delete("/consents/{userID}/{clientID}", deps.Admin.RevokeConsent)
			r.Post("/webhooks", deps.Admin.CreateWebhook)
			r.Get("/webhooks", deps.Admin.ListWebhooks)
			r.Delete("/webhooks/{endpointID}", deps.Admin.DeactivateWebhook)
			r.Get("/events", deps.Admin.ListEvents)
		})
	})

	return r
}
