package httpserver

import (
	"context"
	"errors"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sakashimaa/fulfillment-saga/pkg/config"
	"github.com/sakashimaa/fulfillment-saga/pkg/mylogger"
	"go.uber.org/zap"
)

// New returns a fiber app with tracing, panic recovery, /health and /metrics.
func New(name string, cfg config.HTTP, logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               name,
		ReadTimeout:           cfg.Timeout,
		WriteTimeout:          cfg.Timeout,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
			}

			var re *RequestError
			if errors.As(err, &re) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": re.Fields})
			}

			return WriteError(c, logger, err)
		},
	})

	app.Use(recover.New())
	app.Use(otelfiber.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString(name + " is alive!")
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	return app
}

// Serve listens until ctx is done, then shuts the app down.
func Serve(ctx context.Context, app *fiber.App, port string, logger *zap.Logger) {
	go func() {
		mylogger.Info(ctx, logger, "HTTP server listening", zap.String("port", port))
		if err := app.Listen(port); err != nil {
			mylogger.Error(ctx, logger, "HTTP server stopped", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		if err := app.Shutdown(); err != nil {
			mylogger.Warn(context.WithoutCancel(ctx), logger, "Error shutting down HTTP server", zap.Error(err))
		}
	}()
}
