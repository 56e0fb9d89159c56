package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/salonbook-backend/internal/services"
)

const somethingWentWrong = "❌ Sorry, something went wrong. Please try again."

// MessageReceiver is the conversation entry point used by the webhooks.
type MessageReceiver interface {
	ReceiveMessage(ctx context.Context, from, text string) (string, error)
}

// WhatsAppHandler handles WhatsApp webhook requests
type WhatsAppHandler struct {
	receiver    MessageReceiver
	messenger   services.Messenger
	verifyToken string
	logger      *zap.Logger
}

// NewWhatsAppHandler creates a new WhatsApp handler
func NewWhatsAppHandler(receiver MessageReceiver, messenger services.Messenger, verifyToken string, logger *zap.Logger) *WhatsAppHandler {
	return &WhatsAppHandler{
		receiver:    receiver,
		messenger:   messenger,
		verifyToken: verifyToken,
		logger:      logger,
	}
}

// TwilioWebhookPayload represents incoming WhatsApp message from Twilio
type TwilioWebhookPayload struct {
	MessageSid string `form:"MessageSid"`
	AccountSid string `form:"AccountSid"`
	From       string `form:"From"` // WhatsApp number (whatsapp:+919876543210)
	To         string `form:"To"`   // Your Twilio number
	Body       string `form:"Body"` // Message text
	NumMedia   string `form:"NumMedia"`
}

// HandleWebhook processes incoming WhatsApp messages. The reply goes out
// through the messenger, so Twilio only gets an acknowledgement.
func (h *WhatsAppHandler) HandleWebhook(c *fiber.Ctx) error {
	var payload TwilioWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		h.logger.Warn("invalid webhook payload", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	// Status callbacks carry no sender text.
	if payload.From == "" || payload.Body == "" {
		return c.SendStatus(fiber.StatusOK)
	}

	// Parsed values alias the request buffer; the conversation keeps them.
	from := utils.CopyString(strings.TrimPrefix(payload.From, "whatsapp:"))
	body := utils.CopyString(payload.Body)
	messageSid := utils.CopyString(payload.MessageSid)
	h.logger.Debug("whatsapp message received",
		zap.String("from", from),
		zap.String("message_sid", messageSid))

	ctx := c.UserContext()
	if messageSid != "" {
		ctx = services.WithMessageID(ctx, messageSid)
	}
	if _, err := h.receiver.ReceiveMessage(ctx, from, body); err != nil {
		h.fail(ctx, from, err)
	}

	// Acknowledge webhook receipt
	return c.SendStatus(fiber.StatusOK)
}

// fail tells the sender the message was not handled. The conversation
// itself is unchanged.
func (h *WhatsAppHandler) fail(ctx context.Context, from string, err error) {
	h.logger.Error("failed to handle whatsapp message", zap.String("from", from), zap.Error(err))
	if errors.Is(err, services.ErrInvalidIdentity) {
		return
	}
	identity := strings.TrimPrefix(from, "+")
	if sendErr := h.messenger.Send(ctx, identity, somethingWentWrong); sendErr != nil {
		h.logger.Warn("failed to send error reply", zap.Error(sendErr))
	}
}

// VerifyWebhook answers the subscription handshake: the challenge is echoed
// back when the verify token matches.
func (h *WhatsAppHandler) VerifyWebhook(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if token == "" || token != h.verifyToken || (mode != "" && mode != "subscribe") {
		h.logger.Warn("webhook verification failed", zap.String("mode", mode))
		return c.SendStatus(fiber.StatusForbidden)
	}
	return c.SendString(challenge)
}

// TestWebhookPayload is the body accepted by the development endpoint.
type TestWebhookPayload struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

// HandleTestWebhook runs a message through the conversation and returns the
// reply in the response (for development).
func (h *WhatsAppHandler) HandleTestWebhook(c *fiber.Ctx) error {
	var payload TestWebhookPayload
	if err := c.BodyParser(&payload); err != nil || payload.From == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid test payload",
		})
	}

	response, err := h.receiver.ReceiveMessage(c.UserContext(), payload.From, payload.Message)
	if err != nil {
		h.logger.Error("failed to handle test message", zap.String("from", payload.From), zap.Error(err))
		status := fiber.StatusInternalServerError
		if errors.Is(err, services.ErrInvalidIdentity) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"error":   somethingWentWrong,
		})
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"response": response,
	})
}
