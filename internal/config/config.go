package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration.
type Config struct {
	RunAddress  string `mapstructure:"RUN_ADDRESS"`
	DatabaseURI string `mapstructure:"DATABASE_URI"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	// Payment gateway
	GatewayBaseURL        string        `mapstructure:"GATEWAY_BASE_URL"`
	GatewayPublishableKey string        `mapstructure:"GATEWAY_PUBLISHABLE_KEY"`
	GatewayCountryCode    string        `mapstructure:"GATEWAY_COUNTRY_CODE"`
	GatewayCurrency       string        `mapstructure:"GATEWAY_CURRENCY"`
	GatewayTimeout        time.Duration `mapstructure:"GATEWAY_TIMEOUT"`

	// Commission model: a gateway fee is deducted first, then the staff
	// share of the net is paid as commission.
	GatewayFeeRate float64 `mapstructure:"GATEWAY_FEE_RATE"`
	CommissionRate float64 `mapstructure:"COMMISSION_RATE"`

	// Notifications
	AMQPURL         string `mapstructure:"AMQP_URL"`
	NotifyExchange  string `mapstructure:"NOTIFY_EXCHANGE"`
	NotifyWorkers   int    `mapstructure:"NOTIFY_WORKERS"`
	NotifyQueueSize int    `mapstructure:"NOTIFY_QUEUE_SIZE"`

	// Scheduled jobs
	PayoutSchedule         string        `mapstructure:"PAYOUT_SCHEDULE"`
	RenewalSchedule        string        `mapstructure:"RENEWAL_SCHEDULE"`
	RenewalAgeMonths       int           `mapstructure:"RENEWAL_AGE_MONTHS"`
	CheckoutExpirySchedule string        `mapstructure:"CHECKOUT_EXPIRY_SCHEDULE"`
	CheckoutTTL            time.Duration `mapstructure:"CHECKOUT_TTL"`
}

var keys = []string{
	"RUN_ADDRESS", "DATABASE_URI", "JWT_SECRET", "LOG_LEVEL",
	"GATEWAY_BASE_URL", "GATEWAY_PUBLISHABLE_KEY", "GATEWAY_COUNTRY_CODE",
	"GATEWAY_CURRENCY", "GATEWAY_TIMEOUT", "GATEWAY_FEE_RATE",
	"COMMISSION_RATE", "AMQP_URL", "NOTIFY_EXCHANGE", "NOTIFY_WORKERS",
	"NOTIFY_QUEUE_SIZE", "PAYOUT_SCHEDULE", "RENEWAL_SCHEDULE",
	"RENEWAL_AGE_MONTHS", "CHECKOUT_EXPIRY_SCHEDULE", "CHECKOUT_TTL",
}

// Load reads configuration from environment variables with sane
// defaults, then validates required keys.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("RUN_ADDRESS", ":8080")
	v.SetDefault("JWT_SECRET", "default-secret-key-change-in-production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("GATEWAY_COUNTRY_CODE", "254")
	v.SetDefault("GATEWAY_CURRENCY", "KES")
	v.SetDefault("GATEWAY_TIMEOUT", 10*time.Second)
	v.SetDefault("GATEWAY_FEE_RATE", 0.03)
	v.SetDefault("COMMISSION_RATE", 0.70)
	v.SetDefault("NOTIFY_EXCHANGE", "servicedesk.notifications")
	v.SetDefault("NOTIFY_WORKERS", 3)
	v.SetDefault("NOTIFY_QUEUE_SIZE", 100)
	v.SetDefault("PAYOUT_SCHEDULE", "0 17 * * 5")   // Friday 17:00
	v.SetDefault("RENEWAL_SCHEDULE", "0 9 * * *")   // daily 09:00
	v.SetDefault("RENEWAL_AGE_MONTHS", 11)
	v.SetDefault("CHECKOUT_EXPIRY_SCHEDULE", "0 * * * *") // hourly
	v.SetDefault("CHECKOUT_TTL", 24*time.Hour)

	v.AutomaticEnv()
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}

	if cfg.DatabaseURI == "" {
		return nil, fmt.Errorf("config: DATABASE_URI is required")
	}
	if cfg.GatewayBaseURL == "" {
		return nil, fmt.Errorf("config: GATEWAY_BASE_URL is required")
	}
	if cfg.GatewayFeeRate < 0 || cfg.GatewayFeeRate >= 1 {
		return nil, fmt.Errorf("config: GATEWAY_FEE_RATE must be in [0,1): %f", cfg.GatewayFeeRate)
	}
	if cfg.CommissionRate <= 0 || cfg.CommissionRate > 1 {
		return nil, fmt.Errorf("config: COMMISSION_RATE must be in (0,1]: %f", cfg.CommissionRate)
	}
	if cfg.NotifyWorkers <= 0 || cfg.NotifyQueueSize <= 0 {
		return nil, fmt.Errorf("config: notify worker pool sizes must be positive")
	}

	return &cfg, nil
}
