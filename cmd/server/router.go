package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/studypal-api/internal/api"
	apiMiddleware "github.com/phrazzld/studypal-api/internal/api/middleware"
	"github.com/phrazzld/studypal-api/internal/entitlement"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))
	r.Use(app.metrics.Middleware)
	r.Use(middleware.Recoverer)

	var identity *apiMiddleware.IdentityMiddleware
	if app.jwtService != nil {
		identity = apiMiddleware.NewJWTIdentity(app.jwtService)
	} else {
		identity = apiMiddleware.NewHeaderIdentity(app.config.Auth.IdentityHeader)
	}
	entitlements := apiMiddleware.NewEntitlementMiddleware(app.guard)
	limiter := apiMiddleware.NewRateLimiter(app.config.RateLimit.RequestsPerMinute, app.config.RateLimit.Burst)

	accountHandler := api.NewAccountHandler(app.accountService, app.trialCounter, app.clock)
	studyHandler := api.NewStudyHandler(app.assistant, app.trialCounter)

	var pinger api.Pinger
	if app.accountStore != nil {
		pinger = app.accountStore
	}
	healthHandler := api.NewHealthHandler(pinger, app.config.Entitlement.StoreTimeout)

	r.Get("/health", healthHandler.Health)
	r.Handle("/metrics", app.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if app.billing != nil {
			r.Post("/billing/webhook", api.NewBillingHandler(app.billing).Webhook)
		}

		r.Group(func(r chi.Router) {
			r.Use(identity.Authenticate)

			r.Post("/accounts", accountHandler.ProvisionAccount)

			r.With(entitlements.Require(entitlement.CapabilityAccount)).Get("/entitlements", accountHandler.GetEntitlements)
			r.With(entitlements.Require(entitlement.CapabilityAccount)).Get("/trials", accountHandler.GetTrials)

			// Metered study features
			r.Group(func(r chi.Router) {
				r.Use(entitlements.Require(entitlement.CapabilityAccount))
				r.Use(limiter.Limit)
				r.Post("/assistant/ask", studyHandler.Ask)
				r.Post("/flashcards/generate", studyHandler.GenerateFlashcards)
				r.Post("/quiz/attempts", studyHandler.RecordQuizAttempt)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(entitlements.Require(entitlement.CapabilityAdmin))
				r.Get("/accounts/{id}", accountHandler.GetAccount)
				r.Post("/accounts/{id}/tier", accountHandler.UpdateTier)
			})
		})
	})

	return r
}
