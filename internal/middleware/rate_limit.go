package middleware

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// SenderLimiter throttles inbound messages per sender.
type SenderLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*senderEntry
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastPrune time.Time
}

type senderEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewSenderLimiter allows perMinute messages per sender per minute, with
// bursts of the same size.
func NewSenderLimiter(perMinute int) *SenderLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &SenderLimiter{
		limiters: make(map[string]*senderEntry),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		now:      time.Now,
	}
}

// Allow reports whether one more message from key may be processed now.
func (l *SenderLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastPrune) > limiterIdleTTL {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(l.limiters, k)
			}
		}
		l.lastPrune = now
	}

	e, ok := l.limiters[key]
	if !ok {
		e = &senderEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// RateLimitBySender rejects senders that exceed the limiter with 429. The
// sender is the From form field, or the client IP when it is missing.
func RateLimitBySender(l *SenderLimiter, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// The key outlives the request, so it must not alias the body buffer.
		key := utils.CopyString(strings.TrimPrefix(c.FormValue("From"), "whatsapp:"))
		if key == "" {
			key = utils.CopyString(c.IP())
		}
		if !l.Allow(key) {
			logger.Warn("rate limit exceeded", zap.String("sender", key))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many messages, please slow down",
			})
		}
		return c.Next()
	}
}
