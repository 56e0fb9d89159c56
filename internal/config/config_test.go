package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every known key; viper ignores empty variables.
func clearEnv(t *testing.T) {
	t.Helper()
	for key := range defaults {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "salonbook", cfg.Database.Name)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "Pretty Saloon", cfg.BusinessName)
	assert.Equal(t, "91", cfg.CountryPrefix)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 15*time.Minute, cfg.SessionSweepInterval)
	assert.Equal(t, 10*time.Second, cfg.LockTimeout)
	assert.Equal(t, 3, cfg.MaxConflictRetries)
	assert.Equal(t, "salon_verify_token", cfg.WhatsAppVerifyToken)
	assert.False(t, cfg.Twilio.Configured())
	assert.Equal(t, "Asia/Kolkata", cfg.Location().String())
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "secret")
	t.Setenv("TWILIO_WHATSAPP_FROM", "whatsapp:+14155238886")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("USE_MEMORY_STORE", "true")
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.True(t, cfg.Twilio.Configured())
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.True(t, cfg.UseMemoryStore)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"TIMEZONE":             "Mars/Olympus",
		"COUNTRY_PREFIX":       "+91",
		"SESSION_TTL":          "-1h",
		"LOCK_TIMEOUT":         "0s",
		"MAX_CONFLICT_RETRIES": "-2",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
