package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Ananth-NQI/salonbook-backend/internal/services"
)

// SessionExpiryJob periodically closes conversations that have been idle
// longer than the session TTL.
type SessionExpiryJob struct {
	sessions  *services.SessionManager
	messenger services.Messenger
	interval  time.Duration
	logger    *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSessionExpiryJob creates the sweeper. When messenger is nil expired
// customers are not notified.
func NewSessionExpiryJob(sessions *services.SessionManager, messenger services.Messenger, interval time.Duration, logger *zap.Logger) *SessionExpiryJob {
	return &SessionExpiryJob{
		sessions:  sessions,
		messenger: messenger,
		interval:  interval,
		logger:    logger,
	}
}

// Start runs the sweeper in the background until Stop is called.
func (j *SessionExpiryJob) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		j.logger.Warn("session expiry job already running")
		return
	}
	if j.interval <= 0 {
		j.logger.Info("session expiry job disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.done = make(chan struct{})
	go j.loop(ctx, j.done)

	j.logger.Info("session expiry job started", zap.Duration("interval", j.interval))
}

// Stop halts the sweeper and waits for an in-flight run to finish.
func (j *SessionExpiryJob) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	j.logger.Info("session expiry job stopped")
}

func (j *SessionExpiryJob) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil {
				j.logger.Error("session expiry run failed", zap.Error(err))
			}
		}
	}
}

// RunOnce expires idle sessions and notifies their customers. It returns
// the number of sessions closed.
func (j *SessionExpiryJob) RunOnce(ctx context.Context) (int, error) {
	expired, err := j.sessions.ExpireStale(ctx)
	for _, s := range expired {
		j.logger.Info("session expired",
			zap.String("identity", s.Identity),
			zap.Uint("session_id", s.ID))
		if j.messenger == nil {
			continue
		}
		if sendErr := j.messenger.Send(ctx, s.Identity, services.SessionExpiredText); sendErr != nil {
			j.logger.Warn("failed to notify expired session",
				zap.String("identity", s.Identity),
				zap.Error(sendErr))
		}
	}
	return len(expired), err
}
