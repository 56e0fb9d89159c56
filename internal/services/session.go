package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/salonbook-backend/internal/models"
	"github.com/Ananth-NQI/salonbook-backend/internal/storage"
	"github.com/Ananth-NQI/salonbook-backend/internal/utils"
)

// SessionManager manages conversation sessions and their expiry.
type SessionManager struct {
	store  storage.Store
	clock  utils.Clock
	ttl    time.Duration // zero disables expiry
	logger *zap.Logger
}

// NewSessionManager creates a new session manager
func NewSessionManager(store storage.Store, clock utils.Clock, ttl time.Duration, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		store:  store,
		clock:  clock,
		ttl:    ttl,
		logger: logger,
	}
}

// Load returns the active session for identity, creating one at START if
// there is none. An active session idle for longer than the TTL is closed
// first and expired is set.
func (sm *SessionManager) Load(ctx context.Context, identity string) (session *models.ConversationSession, expired bool, err error) {
	session, err = sm.store.GetActiveSession(ctx, identity)
	switch {
	case err == nil:
		if !sm.isStale(session) {
			return session, false, nil
		}
		closeSession(session)
		if err := sm.store.SaveSession(ctx, session); err != nil {
			return nil, false, fmt.Errorf("expire session %d: %w", session.ID, err)
		}
		sm.logger.Info("session expired on access",
			zap.String("identity", identity),
			zap.Uint("session_id", session.ID))
		expired = true
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, false, fmt.Errorf("get active session: %w", err)
	}

	session = &models.ConversationSession{
		Identity: identity,
		Step:     models.StepStart,
		Active:   true,
	}
	if err := sm.store.CreateSession(ctx, session); err != nil {
		return nil, false, fmt.Errorf("create session: %w", err)
	}
	sm.logger.Debug("session created", zap.String("identity", identity), zap.Uint("session_id", session.ID))
	return session, expired, nil
}

// ExpireStale closes every active session idle for longer than the TTL and
// returns the closed sessions. Sessions that changed while being expired are
// left alone.
func (sm *SessionManager) ExpireStale(ctx context.Context) ([]*models.ConversationSession, error) {
	if sm.ttl <= 0 {
		return nil, nil
	}

	idle, err := sm.store.ListIdleSessions(ctx, sm.clock.Now().Add(-sm.ttl))
	if err != nil {
		return nil, fmt.Errorf("list idle sessions: %w", err)
	}

	var expired []*models.ConversationSession
	for _, s := range idle {
		closeSession(s)
		if err := sm.store.SaveSession(ctx, s); err != nil {
			if errors.Is(err, storage.ErrVersionConflict) {
				continue
			}
			return expired, fmt.Errorf("expire session %d: %w", s.ID, err)
		}
		expired = append(expired, s)
	}
	return expired, nil
}

// ActiveCount returns the number of active sessions.
func (sm *SessionManager) ActiveCount(ctx context.Context) (int64, error) {
	return sm.store.CountActiveSessions(ctx)
}

func (sm *SessionManager) isStale(s *models.ConversationSession) bool {
	return sm.ttl > 0 && sm.clock.Now().Sub(s.UpdatedAt) > sm.ttl
}

// closeSession moves a session to its terminal state.
func closeSession(s *models.ConversationSession) {
	s.Step = models.StepCompleted
	s.Active = false
}
