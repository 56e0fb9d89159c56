package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/twilio/twilio-go/client"
	"go.uber.org/zap"
)

// ValidateTwilioSignature validates that the webhook request is from Twilio
func ValidateTwilioSignature(authToken string, logger *zap.Logger) fiber.Handler {
	validator := client.NewRequestValidator(authToken)

	return func(c *fiber.Ctx) error {
		// Get Twilio signature from header
		twilioSignature := c.Get("X-Twilio-Signature")
		if twilioSignature == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Twilio signature",
			})
		}

		if authToken == "" {
			// Log error but don't expose to client
			logger.Error("TWILIO_AUTH_TOKEN not set, cannot validate webhook")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Server configuration error",
			})
		}

		// Get all form parameters
		formParams := make(map[string]string)
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			formParams[string(key)] = string(value)
		})

		if !validator.Validate(fullURL(c), formParams, twilioSignature) {
			logger.Warn("rejected webhook with invalid Twilio signature", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid signature",
			})
		}

		return c.Next()
	}
}

// fullURL rebuilds the URL Twilio signed. Behind Cloud Run the scheme
// comes from X-Forwarded-Proto. The path comes from the parsed URI since
// the raw request target may be in absolute form.
func fullURL(c *fiber.Ctx) string {
	scheme := c.Get(fiber.HeaderXForwardedProto)
	if scheme == "" {
		scheme = c.Protocol()
	}
	return fmt.Sprintf("%s://%s%s", scheme, c.Hostname(), c.Request().URI().RequestURI())
}
