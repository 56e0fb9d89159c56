package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/salonbook-backend/database"
	"github.com/Ananth-NQI/salonbook-backend/internal/handlers"
	"github.com/Ananth-NQI/salonbook-backend/internal/jobs"
	"github.com/Ananth-NQI/salonbook-backend/internal/routes"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the WhatsApp webhook server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(wireOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if migrate && a.db != nil {
				a.logger.Info("running database migrations")
				if err := database.Migrate(a.db); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
			}

			return serve(cmd, a)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "run database migrations before serving")
	return cmd
}

func newFiberApp(a *app) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "SalonBook Backend v" + Version,
		DisableStartupMessage: a.cfg.IsProduction(),
		// Request values end up in stored sessions and limiter keys.
		Immutable:             true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			if code >= fiber.StatusInternalServerError {
				a.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
				return c.Status(code).JSON(fiber.Map{"error": "Internal server error"})
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, X-Twilio-Signature",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	whatsapp := handlers.NewWhatsAppHandler(a.conversation, a.messenger, a.cfg.WhatsAppVerifyToken, a.logger)
	health := handlers.NewHealthHandler(Version, a.store, a.conversation.Sessions(), a.storageType, a.messengerMode, a.logger)
	routes.SetupRoutes(app, whatsapp, health, routes.Options{
		Version:            Version,
		ValidateSignatures: !a.cfg.DisableWebhookValidation,
		TwilioAuthToken:    a.cfg.Twilio.AuthToken,
		RateLimitPerMinute: a.cfg.RateLimitPerMinute,
		EnableTestRoutes:   !a.cfg.IsProduction(),
	}, a.logger)

	return app
}

func serve(cmd *cobra.Command, a *app) error {
	app := newFiberApp(a)

	sweeper := jobs.NewSessionExpiryJob(a.conversation.Sessions(), a.messenger, a.cfg.SessionSweepInterval, a.logger)
	sweeper.Start()
	defer sweeper.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listenErr := make(chan error, 1)
	go func() {
		a.logger.Info("SalonBook backend starting",
			zap.String("port", a.cfg.Port),
			zap.String("environment", a.cfg.Environment),
			zap.String("storage", a.storageType),
			zap.String("whatsapp", a.messengerMode),
			zap.String("business", a.cfg.BusinessName))
		listenErr <- app.Listen(":" + a.cfg.Port)
	}()

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("gracefully shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return err
	}
	return <-listenErr
}
