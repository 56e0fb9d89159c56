package routes

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/salonbook-backend/internal/handlers"
	"github.com/Ananth-NQI/salonbook-backend/internal/middleware"
)

// Options controls how the routes are protected.
type Options struct {
	Version            string
	ValidateSignatures bool
	TwilioAuthToken    string
	RateLimitPerMinute int
	EnableTestRoutes   bool
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, whatsapp *handlers.WhatsAppHandler, health *handlers.HealthHandler, opts Options, logger *zap.Logger) {
	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		endpoints := fiber.Map{
			"health":  "/health",
			"webhook": "/webhook/whatsapp",
		}
		if opts.EnableTestRoutes {
			endpoints["test_whatsapp"] = "/test/whatsapp"
		}
		return c.JSON(fiber.Map{
			"message":   "Welcome to SalonBook Backend!",
			"version":   opts.Version,
			"endpoints": endpoints,
		})
	})

	app.Get("/health", health.Check)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")
	webhooks.Get("/whatsapp", whatsapp.VerifyWebhook)

	inbound := []fiber.Handler{
		middleware.RateLimitBySender(middleware.NewSenderLimiter(opts.RateLimitPerMinute), logger),
	}
	if opts.ValidateSignatures {
		inbound = append([]fiber.Handler{middleware.ValidateTwilioSignature(opts.TwilioAuthToken, logger)}, inbound...)
	} else {
		logger.Warn("WhatsApp webhook signature validation DISABLED")
	}
	webhooks.Post("/whatsapp", append(inbound, whatsapp.HandleWebhook)...)

	// ========== TEST ROUTES (Development Only) ==========
	if opts.EnableTestRoutes {
		app.Post("/test/whatsapp", whatsapp.HandleTestWebhook)
	}
}
