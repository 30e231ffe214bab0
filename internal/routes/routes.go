package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BradenHooton/mailguard/internal/auth"
	"github.com/BradenHooton/mailguard/internal/handlers"
	"github.com/BradenHooton/mailguard/internal/middleware"
	"github.com/BradenHooton/mailguard/internal/models"
	pkghttp "github.com/BradenHooton/mailguard/pkg/http"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes
type Handlers struct {
	Health          *handlers.HealthHandler
	LoginAssessment *handlers.LoginAssessmentHandler
	Admin           *handlers.AdminHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, h Handlers, tokens auth.TokenValidator, ipConfig *pkghttp.IPConfig) {
	router.Get("/health", h.Health.Health)
	router.Handle("/metrics", promhttp.Handler())

	// Called by the mail system's login route with a service token
	router.Route("/internal", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(middleware.DefaultAssessmentRateLimit(), ipConfig))
		r.Use(auth.AuthMiddleware(tokens))
		r.Use(auth.RequireRole(models.RoleService))

		r.Post("/login-assessments", h.LoginAssessment.Assess)
		r.Post("/logouts", h.LoginAssessment.Logout)
	})

	// Admin security console
	router.Route("/admin/security", func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokens))
		r.Use(auth.RequireRole(models.RoleAdmin))
		r.Use(middleware.RateLimitByUserID(middleware.DefaultConsoleRateLimit(), ipConfig))

		r.Get("/alerts", h.Admin.ListAlerts)
		r.Get("/alerts/{id}", h.Admin.GetAlert)
		r.Post("/alerts/{id}/resolve", h.Admin.ResolveAlert)

		r.Get("/stats", h.Admin.GetStats)

		r.Get("/sessions", h.Admin.ListSessions)
		r.Post("/sessions/{id}/terminate", h.Admin.TerminateSession)

		r.Get("/users/{userID}/devices", h.Admin.ListUserDevices)
		r.Delete("/devices/{id}", h.Admin.RevokeDevice)

		r.Get("/rules", h.Admin.ListRules)
		r.Post("/rules/reload", h.Admin.ReloadRules)
	})
}
