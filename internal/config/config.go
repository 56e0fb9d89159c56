package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	Port        string `mapstructure:"PORT"`
	Environment string `mapstructure:"ENVIRONMENT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	UseMemoryStore bool           `mapstructure:"USE_MEMORY_STORE"`
	Database       DatabaseConfig `mapstructure:",squash"`

	Twilio                   TwilioConfig `mapstructure:",squash"`
	DisableWebhookValidation bool         `mapstructure:"DISABLE_WEBHOOK_VALIDATION"`
	WhatsAppVerifyToken      string       `mapstructure:"WHATSAPP_VERIFY_TOKEN"`
	RateLimitPerMinute       int          `mapstructure:"RATE_LIMIT_PER_MINUTE"`

	// Redis is only used for the distributed per-identity lock.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisLockDB   int    `mapstructure:"REDIS_LOCK_DB"`

	BusinessName         string        `mapstructure:"BUSINESS_NAME"`
	CountryPrefix        string        `mapstructure:"COUNTRY_PREFIX"`
	Timezone             string        `mapstructure:"TIMEZONE"`
	SessionTTL           time.Duration `mapstructure:"SESSION_TTL"`
	SessionSweepInterval time.Duration `mapstructure:"SESSION_SWEEP_INTERVAL"`
	LockTimeout          time.Duration `mapstructure:"LOCK_TIMEOUT"`
	MaxConflictRetries   int           `mapstructure:"MAX_CONFLICT_RETRIES"`
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	User                   string `mapstructure:"DB_USER"`
	Password               string `mapstructure:"DB_PASS"`
	Name                   string `mapstructure:"DB_NAME"`
	Host                   string `mapstructure:"DB_HOST"`
	Port                   int    `mapstructure:"DB_PORT"`
	InstanceConnectionName string `mapstructure:"INSTANCE_CONNECTION_NAME"`
}

// TwilioConfig holds the WhatsApp sender credentials.
type TwilioConfig struct {
	AccountSID   string `mapstructure:"TWILIO_ACCOUNT_SID"`
	AuthToken    string `mapstructure:"TWILIO_AUTH_TOKEN"`
	WhatsAppFrom string `mapstructure:"TWILIO_WHATSAPP_FROM"` // Format: "whatsapp:+14155238886"
}

// Configured reports whether all Twilio credentials are present.
func (t TwilioConfig) Configured() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.WhatsAppFrom != ""
}

var defaults = map[string]any{
	"PORT":                       "8080",
	"ENVIRONMENT":                "development",
	"LOG_LEVEL":                  "info",
	"USE_MEMORY_STORE":           false,
	"DB_USER":                    "postgres",
	"DB_PASS":                    "",
	"DB_NAME":                    "salonbook",
	"DB_HOST":                    "localhost",
	"DB_PORT":                    5432,
	"INSTANCE_CONNECTION_NAME":   "",
	"TWILIO_ACCOUNT_SID":         "",
	"TWILIO_AUTH_TOKEN":          "",
	"TWILIO_WHATSAPP_FROM":       "",
	"DISABLE_WEBHOOK_VALIDATION": false,
	"WHATSAPP_VERIFY_TOKEN":      "salon_verify_token",
	"RATE_LIMIT_PER_MINUTE":      30,
	"REDIS_ADDR":                 "",
	"REDIS_PASSWORD":             "",
	"REDIS_LOCK_DB":              0,
	"BUSINESS_NAME":              "Pretty Saloon",
	"COUNTRY_PREFIX":             "91",
	"TIMEZONE":                   "Asia/Kolkata",
	"SESSION_TTL":                "24h",
	"SESSION_SWEEP_INTERVAL":     "15m",
	"LOCK_TIMEOUT":               "10s",
	"MAX_CONFLICT_RETRIES":       3,
}

// Load reads .env files for local development, then config.yaml (if any)
// and the environment. Environment variables win over the file.
func Load() (*Config, error) {
	// Try multiple locations for .env file
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("environments/.env.development")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.CountryPrefix == "" || strings.Trim(c.CountryPrefix, "0123456789") != "" {
		return fmt.Errorf("invalid COUNTRY_PREFIX %q: must be digits", c.CountryPrefix)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.SessionSweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be positive, got %s", c.SessionSweepInterval)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT must be positive, got %s", c.LockTimeout)
	}
	if c.MaxConflictRetries < 0 {
		return fmt.Errorf("MAX_CONFLICT_RETRIES must not be negative")
	}
	return nil
}

// Location returns the configured time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
