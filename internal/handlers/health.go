package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionCounter reports how many conversations are in progress.
type SessionCounter interface {
	ActiveCount(ctx context.Context) (int64, error)
}

// HealthHandler handles health check requests
type HealthHandler struct {
	Version       string
	store         Pinger
	sessions      SessionCounter
	storageType   string
	messengerMode string
	logger        *zap.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, store Pinger, sessions SessionCounter, storageType, messengerMode string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		Version:       version,
		store:         store,
		sessions:      sessions,
		storageType:   storageType,
		messengerMode: messengerMode,
		logger:        logger,
	}
}

// Check returns the health status of the service
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "healthy"
	statusCode := fiber.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("health check: store unreachable", zap.Error(err))
		status = "unhealthy"
		statusCode = fiber.StatusServiceUnavailable
	}

	response := fiber.Map{
		"status":  status,
		"service": "SalonBook Backend",
		"version": h.Version,
		"storage": h.storageType,
		"whatsapp": fiber.Map{
			"messenger": h.messengerMode,
		},
	}
	if statusCode == fiber.StatusOK {
		if active, err := h.sessions.ActiveCount(ctx); err == nil {
			response["active_sessions"] = active
		}
	}

	return c.Status(statusCode).JSON(response)
}
