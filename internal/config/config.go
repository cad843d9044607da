// Package config loads application configuration from environment
// variables. The HTTP server, the Lambda entry point and the seed command
// share it.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"energy-agent/internal/integrations/inference"
	"energy-agent/internal/ratelimit"
)

// Config holds all application configuration.
type Config struct {
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Document store
	DocumentTable    string `env:"DOCUMENT_TABLE,required,notEmpty"`
	DynamoDBEndpoint string `env:"DYNAMODB_ENDPOINT"`

	// Hosted model. Either MODEL_API_TOKEN or MODEL_TOKEN_PARAM supplies
	// the credential; chat answers 503 when neither resolves.
	ModelID          string        `env:"MODEL_ID" envDefault:"mistralai/Mistral-7B-Instruct-v0.2"`
	ModelAPIURL      string        `env:"MODEL_API_URL"`
	ModelAPIToken    string        `env:"MODEL_API_TOKEN"`
	ModelTokenParam  string        `env:"MODEL_TOKEN_PARAM"`
	ModelTokenField  string        `env:"MODEL_TOKEN_FIELD" envDefault:"token"`
	ModelTimeout     time.Duration `env:"MODEL_TIMEOUT" envDefault:"20s"`
	ModelMaxRetries  int           `env:"MODEL_MAX_RETRIES" envDefault:"3"`
	ModelBackoffBase time.Duration `env:"MODEL_BACKOFF_BASE" envDefault:"600ms"`
	ModelBackoffMax  time.Duration `env:"MODEL_BACKOFF_MAX" envDefault:"10s"`
	ModelRPS         float64       `env:"MODEL_RPS" envDefault:"0"`
	ModelBurst       int           `env:"MODEL_BURST" envDefault:"1"`
	ModelMaxTokens   int           `env:"MODEL_MAX_NEW_TOKENS" envDefault:"512"`
	ModelTemperature float64       `env:"MODEL_TEMPERATURE" envDefault:"0.7"`

	// Chat limits
	ChatMaxRequests      int `env:"CHAT_MAX_REQUESTS" envDefault:"5"`
	ChatTimeframeSeconds int `env:"CHAT_TIMEFRAME_SECONDS" envDefault:"60"`
	ChatMaxInputLen      int `env:"CHAT_MAX_INPUT_LEN" envDefault:"1000"`

	// Shared rate limit store; empty keeps the limiter in process memory.
	RedisURL          string `env:"REDIS_URL"`
	RateLimitFallback string `env:"RATE_LIMIT_FALLBACK" envDefault:"memory"`

	// Token verification
	AuthPublicKeys string        `env:"AUTH_PUBLIC_KEYS"`
	AuthHMACSecret string        `env:"AUTH_HMAC_SECRET"`
	AuthAudience   string        `env:"AUTH_AUDIENCE"`
	AuthIssuer     string        `env:"AUTH_ISSUER"`
	AuthLeeway     time.Duration `env:"AUTH_LEEWAY" envDefault:"30s"`
	// AuthKeysRefresh reloads AUTH_PUBLIC_KEYS on this interval; 0 disables.
	AuthKeysRefresh time.Duration `env:"AUTH_KEYS_REFRESH" envDefault:"1h"`

	// Comma-separated list of allowed origins.
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS"`

	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"65536"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// ModelEndpoint returns MODEL_API_URL, or the hosted inference URL for
// MODEL_ID when unset.
func (c *Config) ModelEndpoint() string {
	if u := strings.TrimSpace(c.ModelAPIURL); u != "" {
		return u
	}
	return inference.EndpointForModel(c.ModelID)
}

func (c *Config) ChatWindow() time.Duration {
	return time.Duration(c.ChatTimeframeSeconds) * time.Second
}

func (c *Config) FallbackMode() ratelimit.FallbackMode {
	mode, err := ratelimit.ParseFallbackMode(c.RateLimitFallback)
	if err != nil {
		return ratelimit.FallbackMemory
	}
	return mode
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}
	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))
	for _, origin := range origins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Validate rejects values that parse but make no sense.
func (c *Config) Validate() error {
	var errs []error
	if c.ChatMaxRequests <= 0 {
		errs = append(errs, errors.New("CHAT_MAX_REQUESTS must be positive"))
	}
	if c.ChatTimeframeSeconds <= 0 {
		errs = append(errs, errors.New("CHAT_TIMEFRAME_SECONDS must be positive"))
	}
	if c.ChatMaxInputLen <= 0 {
		errs = append(errs, errors.New("CHAT_MAX_INPUT_LEN must be positive"))
	}
	if c.ModelMaxRetries < 0 {
		errs = append(errs, errors.New("MODEL_MAX_RETRIES must not be negative"))
	}
	if c.ModelTimeout <= 0 {
		errs = append(errs, errors.New("MODEL_TIMEOUT must be positive"))
	}
	if c.AuthKeysRefresh < 0 {
		errs = append(errs, errors.New("AUTH_KEYS_REFRESH must not be negative"))
	}
	if c.ModelRPS < 0 {
		errs = append(errs, errors.New("MODEL_RPS must not be negative"))
	}
	if _, err := ratelimit.ParseFallbackMode(c.RateLimitFallback); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Load parses environment variables and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ParseLogLevel converts a LOG_LEVEL value to slog.Level.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLogLevel(c.LogLevel)}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
