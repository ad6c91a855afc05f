package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/modmail-service/internal/api/http/handlers"
	"github.com/spec-kit/modmail-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Analytics      *handlers.AnalyticsHandler
	History        *handlers.HistoryHandler
	Transcripts    *handlers.TranscriptHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires the read-only dashboard routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/token", cfg.Auth.Token)

	protected := app.Group("", cfg.AuthMiddleware.Handle)
	protected.Get("/guilds/:guildID/analytics", cfg.Analytics.Basic)
	protected.Get("/guilds/:guildID/performance", cfg.Analytics.Performance)
	protected.Get("/guilds/:guildID/report", cfg.Analytics.Report)
	protected.Get("/guilds/:guildID/history", cfg.History.Search)
	protected.Get("/tickets/:ticketID/history", cfg.History.Get)
	protected.Get("/tickets/:ticketID/transcript", cfg.Transcripts.Get)
}
