package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tradorr/tradorr-api/internal/pkg/middleware"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("API Backend Running")
	})

	// fiber metrics
	metrics := app.Group("/metrics", middleware.RequireMetricsAuth())
	metrics.Get("/prometheus", adaptor.HTTPHandler(promhttp.Handler()))
	metrics.Get("/", monitor.New(monitor.Config{Title: "Tradorr API Metrics"}))
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
