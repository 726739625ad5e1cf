package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/types"
)

type Configuration struct {
	Deployment   DeploymentConfig   `validate:"required"`
	Server       ServerConfig       `validate:"required"`
	Postgres     PostgresConfig     `validate:"required"`
	Logging      LoggingConfig      `validate:"required"`
	Cache        CacheConfig        `validate:"required"`
	PayPal       PayPalConfig       `validate:"required"`
	Notification NotificationConfig `validate:"required"`
	Sentry       SentryConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type CacheConfig struct {
	Enabled bool
	// SyncTTL bounds how often an ACTIVE subscription is re-pulled from
	// the remote provider on the read path.
	SyncTTL time.Duration
}

type PayPalConfig struct {
	// APIBaseURL is the provider REST endpoint, e.g.
	// https://api-m.sandbox.paypal.com
	APIBaseURL   string `validate:"required"`
	ClientID     string `validate:"required"`
	ClientSecret string `validate:"required"`
	// WebhookID is the provider-side webhook registration used for
	// signature verification. Empty means non-production mode: signature
	// verification always succeeds. Never acceptable in production.
	WebhookID string
	ReturnURL string
	CancelURL string
	// ProductID is the provider-side product remote billing plans are
	// created under
	ProductID string
	// Timeout bounds every remote call made by the gateway
	Timeout time.Duration
}

type NotificationConfig struct {
	Enabled bool
	Topic   string `validate:"required"`
}

type SentryConfig struct {
	DSN         string
	Environment string
	Enabled     bool
	SampleRate  float64
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	// Load .env for local development, best effort
	_ = godotenv.Load()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/splitfair")

	v.SetEnvPrefix("SPLITFAIR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, ierr.WithError(err).
				WithHint("Failed to read configuration file").
				Mark(ierr.ErrSystem)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to unmarshal configuration").
			Mark(ierr.ErrSystem)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", string(types.ModeDevelopment))
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", string(types.LogLevelInfo))
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.syncttl", 5*time.Minute)
	v.SetDefault("paypal.apibaseurl", "https://api-m.sandbox.paypal.com")
	v.SetDefault("paypal.timeout", 30*time.Second)
	v.SetDefault("notification.enabled", true)
	v.SetDefault("notification.topic", "subscription_transitions")
}

func (c *Configuration) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return ierr.WithError(err).
			WithHint("Invalid configuration").
			Mark(ierr.ErrValidation)
	}
	if c.Deployment.Mode == types.ModeProduction && c.PayPal.WebhookID == "" {
		return ierr.NewError("paypal webhook id is required in production").
			WithHint("Configure SPLITFAIR_PAYPAL_WEBHOOKID").
			Mark(ierr.ErrValidation)
	}
	return nil
}
