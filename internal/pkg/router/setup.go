package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tradorr/tradorr-api/internal/pkg/cache"
)

// Router registers a set of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App) {
	// HttpRouter owns the root, metrics and admin routes; ApiRouter the rate limited /api group.
	setup(app, NewHttpRouter(), NewApiRouter(cache.NewLimiterStorage()))
}
func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
