package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	Env       string `env:"ENV" envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	DatabaseURL   string        `env:"DATABASE_URL"`
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisTLS      bool          `env:"REDIS_TLS" envDefault:"false"`
	BotCacheTTL   time.Duration `env:"BOT_CACHE_TTL" envDefault:"5m"`

	// Completion oracle
	GeminiAPIKey       string        `env:"GEMINI_API_KEY"`
	GeminiModelID      string        `env:"GEMINI_MODEL_ID" envDefault:"gemini-2.0-flash"`
	BedrockModelID     string        `env:"BEDROCK_MODEL_ID"`
	OracleMaxRetries   int           `env:"ORACLE_MAX_RETRIES" envDefault:"3"`
	OracleBaseDelay    time.Duration `env:"ORACLE_BASE_DELAY" envDefault:"1s"`
	OracleTimeout      time.Duration `env:"ORACLE_TIMEOUT" envDefault:"20s"`
	ReplyTemperature   float32       `env:"REPLY_TEMPERATURE" envDefault:"0.5"`
	ReplyMaxTokens     int32         `env:"REPLY_MAX_TOKENS" envDefault:"600"`
	MeetingTemperature float32       `env:"MEETING_TEMPERATURE" envDefault:"0.1"`
	MeetingMaxTokens   int32         `env:"MEETING_MAX_TOKENS" envDefault:"150"`

	// Conversation rules
	HistoryLimit           int `env:"HISTORY_LIMIT" envDefault:"12"`
	PendingMeetingLookback int `env:"PENDING_MEETING_LOOKBACK" envDefault:"5"`
	MaxMessageLength       int `env:"MAX_MESSAGE_LENGTH" envDefault:"5000"`
	AlertThreshold         int `env:"ALERT_THRESHOLD" envDefault:"80"`

	// AWS
	AWSRegion           string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSAccessKeyID      string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey  string `env:"AWS_SECRET_ACCESS_KEY"`
	AWSEndpointOverride string `env:"AWS_ENDPOINT_OVERRIDE"`

	// Lead alerts
	AlertEmailRecipients []string `env:"ALERT_EMAIL_RECIPIENTS" envSeparator:","`
	SendGridAPIKey       string   `env:"SENDGRID_API_KEY"`
	SendGridFromEmail    string   `env:"SENDGRID_FROM_EMAIL"`
	SendGridFromName     string   `env:"SENDGRID_FROM_NAME" envDefault:"BotLode"`
	SESFromEmail         string   `env:"SES_FROM_EMAIL"`
	LeadAlertQueueURL    string   `env:"LEAD_ALERT_QUEUE_URL"`

	// HTTP edge
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	RateLimitRPS       float64  `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst     int      `env:"RATE_LIMIT_BURST" envDefault:"10"`

	// Post-response work
	BackgroundWorkers   int `env:"BACKGROUND_WORKERS" envDefault:"4"`
	BackgroundQueueSize int `env:"BACKGROUND_QUEUE_SIZE" envDefault:"256"`
}

// Load reads an optional .env file, then parses environment variables.
func Load() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()
	return Parse()
}

// Parse reads configuration from the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.AlertEmailRecipients = compact(cfg.AlertEmailRecipients)
	cfg.CORSAllowedOrigins = compact(cfg.CORSAllowedOrigins)
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.GeminiAPIKey) == "" && strings.TrimSpace(c.BedrockModelID) == "" {
		errs = append(errs, errors.New("one of GEMINI_API_KEY or BEDROCK_MODEL_ID is required"))
	}
	if c.OracleMaxRetries < 0 {
		errs = append(errs, errors.New("ORACLE_MAX_RETRIES must not be negative"))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, errors.New("HISTORY_LIMIT must be positive"))
	}
	if c.PendingMeetingLookback < 0 {
		errs = append(errs, errors.New("PENDING_MEETING_LOOKBACK must not be negative"))
	}
	if c.MaxMessageLength <= 0 {
		errs = append(errs, errors.New("MAX_MESSAGE_LENGTH must be positive"))
	}
	if c.AlertThreshold < 0 || c.AlertThreshold > 100 {
		errs = append(errs, errors.New("ALERT_THRESHOLD must be within 0-100"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether the service runs in a production environment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
