package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/liveboard-app/liveboard-api/internal/config"
	"github.com/liveboard-app/liveboard-api/internal/handler"
	"github.com/liveboard-app/liveboard-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	BoardHandler *handler.BoardHandler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	if deps.BoardHandler != nil {
		deps.BoardHandler.Register(api)
	}

	app.Get("/metrics", observability.MetricsHandler())
}
