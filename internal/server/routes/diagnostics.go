package routes

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/ca-hub/ca-hub/internal/metrics"
	"github.com/ca-hub/ca-hub/internal/version"
)

// RegisterDiagnosticsRoutes 暴露 /-/version 与 /-/metrics 诊断接口。
func RegisterDiagnosticsRoutes(app *fiber.App, collector *metrics.Collector) {
	if app == nil {
		return
	}

	app.Get("/-/version", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"version": version.Version,
			"commit":  version.Commit,
		})
	})

	if collector != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(collector.Handler()))
	}
}
