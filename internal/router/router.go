package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/peer-eval-api/internal/config"
	"github.com/noah-isme/peer-eval-api/internal/handler"
	"github.com/noah-isme/peer-eval-api/internal/middleware"
	"github.com/noah-isme/peer-eval-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	PeerEvaluationHandler *handler.PeerEvaluationHandler
	ActivityHandler       *handler.ActivityHandler
	JWTMiddleware         fiber.Handler
	// GradingRateLimit throttles grading runs; nil disables throttling.
	GradingRateLimit fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	evaluations := app.Group("/api/v2/evaluations", jwtMiddleware)

	if deps.PeerEvaluationHandler != nil {
		guards := []fiber.Handler{middleware.RequireRole(middleware.RoleAdmin, middleware.RoleTeacher)}
		if deps.GradingRateLimit != nil {
			guards = append(guards, deps.GradingRateLimit)
		}
		deps.PeerEvaluationHandler.Register(evaluations, guards...)
	}

	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(evaluations)
	}
}
