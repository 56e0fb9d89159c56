package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Ananth-NQI/salonbook-backend/database"
	"github.com/Ananth-NQI/salonbook-backend/internal/config"
	"github.com/Ananth-NQI/salonbook-backend/internal/logger"
	"github.com/Ananth-NQI/salonbook-backend/internal/services"
	"github.com/Ananth-NQI/salonbook-backend/internal/storage"
	"github.com/Ananth-NQI/salonbook-backend/internal/utils"
)

// redisLockTTL bounds how long a crashed instance can hold an identity.
const redisLockTTL = 30 * time.Second

type app struct {
	cfg           *config.Config
	logger        *zap.Logger
	db            *gorm.DB
	store         storage.Store
	storageType   string
	messenger     services.Messenger
	messengerMode string
	conversation  *services.ConversationService
	closers       []func() error
}

type wireOptions struct {
	// memory forces the in-memory store regardless of configuration.
	memory bool
	// offline never sends real WhatsApp messages.
	offline bool
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, log, nil
}

func wireApp(opts wireOptions) (*app, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: log}
	a.closers = append(a.closers, func() error {
		_ = log.Sync()
		return nil
	})

	if err := a.wireStore(opts.memory); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wireMessenger(opts.offline); err != nil {
		a.Close()
		return nil, err
	}
	locker, err := a.wireLocker()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.conversation = services.NewConversationService(a.store, a.messenger, locker, utils.RealClock(), log, services.Settings{
		BusinessName:       cfg.BusinessName,
		CountryPrefix:      cfg.CountryPrefix,
		Location:           cfg.Location(),
		SessionTTL:         cfg.SessionTTL,
		LockTimeout:        cfg.LockTimeout,
		MaxConflictRetries: cfg.MaxConflictRetries,
	})
	return a, nil
}

func (a *app) wireStore(memory bool) error {
	if memory || a.cfg.UseMemoryStore {
		a.logger.Warn("using in-memory storage (not for production!)")
		a.store = storage.NewMemoryStore()
		a.storageType = "memory"
		return nil
	}

	db, err := database.Connect(a.cfg.Database, a.logger)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}
	a.db = db
	a.store = storage.NewDatabaseStore(db)
	a.storageType = "postgres"
	return nil
}

func (a *app) wireMessenger(offline bool) error {
	if offline || !a.cfg.Twilio.Configured() {
		if !offline {
			a.logger.Warn("Twilio credentials not found - replies are only logged")
		}
		a.messenger = services.NewLogMessenger(a.logger)
		a.messengerMode = "log"
		return nil
	}

	twilio, err := services.NewTwilioMessenger(a.cfg.Twilio, a.logger)
	if err != nil {
		return fmt.Errorf("wire messenger: %w", err)
	}
	a.messenger = twilio
	a.messengerMode = "twilio"
	return nil
}

// wireLocker picks the Redis lock when REDIS_ADDR is set so several
// instances can share the webhook; otherwise identities are serialized in
// process.
func (a *app) wireLocker() (services.Locker, error) {
	if a.cfg.RedisAddr == "" {
		return services.NewLocalLocker(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisLockDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", a.cfg.RedisAddr, err)
	}
	a.closers = append(a.closers, client.Close)

	a.logger.Info("using redis session locks", zap.String("addr", a.cfg.RedisAddr))
	return services.NewRedisLocker(client, redisLockTTL, a.logger), nil
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown cleanup failed", zap.Error(err))
	}
}
