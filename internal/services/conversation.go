package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Ananth-NQI/salonbook-backend/internal/models"
	"github.com/Ananth-NQI/salonbook-backend/internal/storage"
	"github.com/Ananth-NQI/salonbook-backend/internal/utils"
)

// Settings tunes the conversation service.
type Settings struct {
	BusinessName       string
	CountryPrefix      string
	Location           *time.Location // "today" and appointment wall-clock time
	SessionTTL         time.Duration  // zero disables expiry
	LockTimeout        time.Duration
	MaxConflictRetries int
}

func (s Settings) withDefaults() Settings {
	if s.BusinessName == "" {
		s.BusinessName = "Pretty Saloon"
	}
	if s.CountryPrefix == "" {
		s.CountryPrefix = "91"
	}
	if s.Location == nil {
		s.Location = time.Local
	}
	if s.LockTimeout <= 0 {
		s.LockTimeout = 10 * time.Second
	}
	if s.MaxConflictRetries < 0 {
		s.MaxConflictRetries = 0
	}
	return s
}

// ConversationService runs the booking conversation: one call to
// ReceiveMessage per inbound message.
type ConversationService struct {
	store     storage.Store
	messenger Messenger
	locker    Locker
	clock     utils.Clock
	sessions  *SessionManager
	settings  Settings
	logger    *zap.Logger
	handlers  map[models.Step]stepHandler
}

// NewConversationService creates a new conversation service
func NewConversationService(
	store storage.Store,
	messenger Messenger,
	locker Locker,
	clock utils.Clock,
	logger *zap.Logger,
	settings Settings,
) *ConversationService {
	settings = settings.withDefaults()
	c := &ConversationService{
		store:     store,
		messenger: messenger,
		locker:    locker,
		clock:     clock,
		sessions:  NewSessionManager(store, clock, settings.SessionTTL, logger),
		settings:  settings,
		logger:    logger,
	}
	c.handlers = c.stepHandlers()
	return c
}

// Sessions returns the session manager used by the service.
func (c *ConversationService) Sessions() *SessionManager {
	return c.sessions
}

type messageIDKey struct{}

// WithMessageID attaches the transport's message id to ctx for logging.
func WithMessageID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, messageIDKey{}, id)
}

func messageIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(messageIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// ReceiveMessage applies one inbound message from the sender to its
// conversation and returns the reply. The reply is also sent through the
// messenger; a failed send is logged and does not affect the result.
//
// Messages from the same sender are processed one at a time, in the order
// they acquire the sender's lock.
func (c *ConversationService) ReceiveMessage(ctx context.Context, from, text string) (string, error) {
	identity := NormalizeIdentity(from, c.settings.CountryPrefix)
	if identity == "" {
		return "", ErrInvalidIdentity
	}
	log := c.logger.With(
		zap.String("identity", identity),
		zap.String("message_id", messageIDFrom(ctx)),
	)

	lockCtx, cancel := context.WithTimeout(ctx, c.settings.LockTimeout)
	unlock, err := c.locker.Lock(lockCtx, identity)
	cancel()
	if err != nil {
		log.Error("failed to acquire conversation lock", zap.Error(err))
		return "", fmt.Errorf("lock %s: %w", identity, err)
	}
	defer unlock()

	var replyText string
	for attempt := 0; ; attempt++ {
		replyText, err = c.process(ctx, log, identity, text)
		if err == nil {
			break
		}
		if isConflict(err) && attempt < c.settings.MaxConflictRetries {
			log.Warn("session changed concurrently, reprocessing message",
				zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		log.Error("failed to process message", zap.Error(err))
		return "", err
	}

	if err := c.messenger.Send(ctx, identity, replyText); err != nil {
		log.Warn("failed to send reply", zap.Error(err))
	}
	return replyText, nil
}

func isConflict(err error) bool {
	return errors.Is(err, storage.ErrVersionConflict) || errors.Is(err, storage.ErrActiveSessionExists)
}

// process loads the session, applies the message and saves the result.
// Nothing is written if a handler fails.
func (c *ConversationService) process(ctx context.Context, log *zap.Logger, identity, text string) (string, error) {
	session, expired, err := c.sessions.Load(ctx, identity)
	if err != nil {
		return "", err
	}

	t := &turn{
		session: session,
		input:   strings.TrimSpace(text),
		log:     log.With(zap.Uint("session_id", session.ID)),
	}
	from := session.Step

	var res turnResult
	switch handler, ok := c.handlers[session.Step]; {
	case IsCancelKeyword(t.input):
		t.log.Info("conversation cancelled by customer", zap.String("step", string(from)))
		res, err = t.cancel(CancelledText)
	case !ok:
		res, err = c.restart(ctx, t)
	default:
		res, err = handler(ctx, t)
	}
	if err != nil {
		return "", err
	}

	if !res.Persisted {
		if err := c.store.SaveSession(ctx, session); err != nil {
			return "", fmt.Errorf("save session %d: %w", session.ID, err)
		}
	}

	t.log.Info("message processed",
		zap.String("from_step", string(from)),
		zap.String("to_step", string(session.Step)),
		zap.Bool("active", session.Active))

	if expired {
		return SessionExpiredText + "\n\n" + res.Reply, nil
	}
	return res.Reply, nil
}

func (c *ConversationService) now() time.Time {
	return c.clock.Now().In(c.settings.Location)
}
