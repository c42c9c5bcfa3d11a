// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the complete service configuration. Each group reads its own variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Gemini    GeminiConfig
	Google    GoogleConfig
	Pipeline  PipelineConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port         int           `envconfig:"PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout  time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
	// ShutdownTimeout bounds graceful shutdown, including in-flight runs being marked interrupted
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	// AllowedOrigins is a comma separated CORS allow list; "*" allows any origin
	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL"`
	// AutoMigrate applies pending migrations when serve starts
	AutoMigrate bool `envconfig:"DATABASE_AUTO_MIGRATE" default:"true"`
}

type GeminiConfig struct {
	APIKey        string `envconfig:"GEMINI_API_KEY"`
	LiteModel     string `envconfig:"GEMINI_LITE_MODEL"`
	StandardModel string `envconfig:"GEMINI_STANDARD_MODEL"`
}

type GoogleConfig struct {
	CredentialsFile     string `envconfig:"GOOGLE_CREDENTIALS_FILE"`
	ServiceAccountEmail string `envconfig:"GOOGLE_SERVICE_ACCOUNT_EMAIL"`
}

type PipelineConfig struct {
	JobTimeout         time.Duration `envconfig:"FEEDBACK_JOB_TIMEOUT" default:"15m"`
	PollInterval       time.Duration `envconfig:"FEEDBACK_POLL_INTERVAL" default:"5s"`
	PollMaxWait        time.Duration `envconfig:"FEEDBACK_POLL_MAX_WAIT" default:"5m"`
	StageTimeout       time.Duration `envconfig:"FEEDBACK_STAGE_TIMEOUT" default:"0s"`
	SectionConcurrency int           `envconfig:"FEEDBACK_SECTION_CONCURRENCY" default:"4"`
	MinSectionChars    int           `envconfig:"FEEDBACK_MIN_SECTION_CHARS" default:"5"`
}

// AuthConfig holds configuration for JWT token generation and validation
type AuthConfig struct {
	Secret          string `envconfig:"JWT_SECRET"`
	ExpirationHours int    `envconfig:"JWT_EXPIRATION_HOURS" default:"24"`
}

// TokenTTL is the lifetime of issued tokens
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.ExpirationHours) * time.Hour
}

type RateLimitConfig struct {
	Enabled bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	// CreatePerMinute limits job creation and retry per client
	CreatePerMinute int `envconfig:"RATE_LIMIT_CREATE_PER_MINUTE" default:"10"`
	// ReadPerMinute limits status reads per client
	ReadPerMinute int `envconfig:"RATE_LIMIT_READ_PER_MINUTE" default:"120"`
	// TrustedProxies are CIDRs whose X-Forwarded-For header is believed
	TrustedProxies []string `envconfig:"RATE_LIMIT_TRUSTED_PROXIES"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"console"`
}

// Requirement names a configuration group that a command cannot run without
type Requirement int

const (
	NeedDatabase Requirement = iota
	NeedGemini
	// NeedGoogle checks GOOGLE_CREDENTIALS_FILE points at a readable file when set.
	// Left empty, the Docs client falls back to application default credentials.
	NeedGoogle
	NeedAuth
)

// Load reads the configuration from the environment. Call godotenv first to pick up .env files.
func Load() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges and the groups named in needs
func (c *Config) Validate(needs ...Requirement) error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Pipeline.JobTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FEEDBACK_JOB_TIMEOUT must be positive"))
	}
	if c.Pipeline.PollInterval <= 0 || c.Pipeline.PollMaxWait <= 0 {
		errs = append(errs, fmt.Errorf("FEEDBACK_POLL_INTERVAL and FEEDBACK_POLL_MAX_WAIT must be positive"))
	}
	if c.Pipeline.StageTimeout < 0 {
		errs = append(errs, fmt.Errorf("FEEDBACK_STAGE_TIMEOUT cannot be negative"))
	}
	if c.Pipeline.SectionConcurrency < 1 {
		errs = append(errs, fmt.Errorf("FEEDBACK_SECTION_CONCURRENCY must be at least 1"))
	}
	if c.Auth.ExpirationHours < 1 {
		errs = append(errs, fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.Auth.ExpirationHours))
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.Log.Format))
	}

	for _, need := range needs {
		switch need {
		case NeedDatabase:
			if c.Database.URL == "" {
				errs = append(errs, errors.New("DATABASE_URL is required but not set"))
			}
		case NeedGemini:
			if c.Gemini.APIKey == "" {
				errs = append(errs, errors.New("GEMINI_API_KEY is required but not set"))
			}
		case NeedGoogle:
			if c.Google.CredentialsFile == "" {
				continue
			}
			if info, err := os.Stat(c.Google.CredentialsFile); err != nil {
				errs = append(errs, fmt.Errorf("GOOGLE_CREDENTIALS_FILE: %w", err))
			} else if info.IsDir() {
				errs = append(errs, fmt.Errorf("GOOGLE_CREDENTIALS_FILE %s is a directory", c.Google.CredentialsFile))
			}
		case NeedAuth:
			if c.Auth.Secret == "" {
				errs = append(errs, errors.New("JWT_SECRET is required but not set"))
			}
		}
	}

	return errors.Join(errs...)
}
