package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	defaultJWTSecret     = "change-me-jwt-secret"
	defaultInternalToken = "change-me-internal-token"
	defaultAnalyticsCron = "0 1 * * *"
	defaultStripeAPIURL  = "https://api.stripe.com"
	defaultPayUAPIURL    = "https://secure.snd.payu.com"
)

type Config struct {
	AppEnv        string `mapstructure:"APP_ENV"`
	HTTPAddr      string `mapstructure:"HTTP_ADDR"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`

	MaxPaymentAttempts int `mapstructure:"MAX_PAYMENT_ATTEMPTS"`

	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripeAPIURL        string `mapstructure:"STRIPE_API_URL"`

	PayUClientID     string `mapstructure:"PAYU_CLIENT_ID"`
	PayUClientSecret string `mapstructure:"PAYU_CLIENT_SECRET"`
	PayUPosID        string `mapstructure:"PAYU_POS_ID"`
	PayUSecondKey    string `mapstructure:"PAYU_SECOND_KEY"`
	PayUAPIURL       string `mapstructure:"PAYU_API_URL"`

	ShelterServiceURL    string `mapstructure:"SHELTER_SERVICE_URL"`
	ShelterServiceAPIKey string `mapstructure:"SHELTER_SERVICE_API_KEY"`

	InternalAPIToken  string `mapstructure:"INTERNAL_API_TOKEN"`
	InternalAllowedIP string `mapstructure:"INTERNAL_ALLOWED_IPS"`

	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`

	AnalyticsCron      string `mapstructure:"ANALYTICS_CRON"`
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

var keys = []string{
	"APP_ENV", "HTTP_ADDR", "DATABASE_URL", "PUBLIC_BASE_URL",
	"JWT_SECRET", "JWT_TTL", "MAX_PAYMENT_ATTEMPTS",
	"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "STRIPE_API_URL",
	"PAYU_CLIENT_ID", "PAYU_CLIENT_SECRET", "PAYU_POS_ID", "PAYU_SECOND_KEY", "PAYU_API_URL",
	"SHELTER_SERVICE_URL", "SHELTER_SERVICE_API_KEY",
	"INTERNAL_API_TOKEN", "INTERNAL_ALLOWED_IPS",
	"RABBITMQ_URL", "EVENTS_EXCHANGE",
	"ANALYTICS_CRON", "CORS_ALLOWED_ORIGINS",
}

// Load reads configuration from the environment. A .env file, if any, is
// expected to be loaded by the caller beforehand.
func Load() (*Config, error) {
	v := viper.New()
	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "file:funding.db?_pragma=busy_timeout(5000)")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("MAX_PAYMENT_ATTEMPTS", 3)
	v.SetDefault("STRIPE_API_URL", defaultStripeAPIURL)
	v.SetDefault("PAYU_API_URL", defaultPayUAPIURL)
	v.SetDefault("INTERNAL_API_TOKEN", defaultInternalToken)
	v.SetDefault("EVENTS_EXCHANGE", "donations")
	v.SetDefault("ANALYTICS_CRON", defaultAnalyticsCron)
	v.AutomaticEnv()

	// AutomaticEnv alone does not make unset keys visible to Unmarshal.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.PublicBaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.PublicBaseURL), "/")

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	log.Printf("config loaded: env=%s addr=%s stripe=%t payu=%t rabbitmq=%t cron=%q",
		cfg.AppEnv, cfg.HTTPAddr, cfg.StripeEnabled(), cfg.PayUEnabled(), cfg.RabbitMQURL != "", cfg.AnalyticsCron)
	return &cfg, nil
}

func (c *Config) StripeEnabled() bool { return strings.TrimSpace(c.StripeSecretKey) != "" }

func (c *Config) PayUEnabled() bool {
	return strings.TrimSpace(c.PayUClientID) != "" && strings.TrimSpace(c.PayUPosID) != ""
}

func (c *Config) IsProduction() bool { return isProdLike(c.AppEnv) }

func (c *Config) CORSOrigins() []string { return splitList(c.CORSAllowedOrigins) }

func (c *Config) InternalAllowedIPs() []string { return splitList(c.InternalAllowedIP) }

// WebhookURL is the public notify URL for a provider.
func (c *Config) WebhookURL(provider string) string {
	return c.PublicBaseURL + "/api/v1/payments/webhook/" + provider
}

func validateConfig(cfg *Config) error {
	if cfg.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be > 0")
	}
	if cfg.MaxPaymentAttempts < 1 {
		return fmt.Errorf("MAX_PAYMENT_ATTEMPTS must be >= 1")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if _, err := cron.ParseStandard(cfg.AnalyticsCron); err != nil {
		return fmt.Errorf("invalid ANALYTICS_CRON %q: %w", cfg.AnalyticsCron, err)
	}
	if u, err := url.Parse(cfg.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("PUBLIC_BASE_URL must be an absolute URL")
	}
	if cfg.StripeEnabled() && strings.TrimSpace(cfg.StripeWebhookSecret) == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}
	if cfg.PayUEnabled() && (strings.TrimSpace(cfg.PayUClientSecret) == "" || strings.TrimSpace(cfg.PayUSecondKey) == "") {
		return fmt.Errorf("PAYU_CLIENT_SECRET and PAYU_SECOND_KEY are required when PayU is configured")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if isEmptyOrDefault(cfg.InternalAPIToken, defaultInternalToken) {
			return fmt.Errorf("in prod/release INTERNAL_API_TOKEN must be set and not default")
		}
		if !cfg.StripeEnabled() && !cfg.PayUEnabled() {
			return fmt.Errorf("in prod/release at least one payment provider must be configured")
		}
		if strings.HasPrefix(cfg.PublicBaseURL, "http://") {
			return fmt.Errorf("in prod/release PUBLIC_BASE_URL must use https")
		}
	}
	return nil
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
