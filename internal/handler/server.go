package handler

import (
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/abushana-oss/mithran-sub003/config"
	"github.com/abushana-oss/mithran-sub003/internal/modules/calculator"
)

// NewApp builds the fiber application with middleware and all routes.
func NewApp(svc *calculator.Service, cfg *config.Config, logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Calculator API",
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		ErrorHandler:          ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(RequestID())
	app.Use(RequestLogger(logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.App.Origins(), ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-User-ID",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1", Auth(cfg.Auth))
	NewCalculatorHandler(svc).Register(api)

	return app
}
