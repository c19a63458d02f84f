// Package config provides configuration for the API server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	PublicBaseURL      string
	CORSAllowedOrigins []string

	// Storage
	DatabaseURL string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Redis alert queue
	RedisURL   string
	AlertQueue string

	// Twilio SMS
	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioFromNumber        string
	TwilioValidateSignature bool
	OwnerPhone              string

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string
	LLMModel        string
	AIReplyTimeout  time.Duration
	BusinessName    string

	// Live fan-out
	LiveBufferSize int

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

const devJWTSecret = "development-secret-change-in-production"

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("SERVER_READ_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 0)
	v.SetDefault("NATS_URL", "")
	v.SetDefault("ALERT_QUEUE", "desk:owner-alerts")
	v.SetDefault("TWILIO_VALIDATE_SIGNATURE", true)
	v.SetDefault("JWT_SECRET", devJWTSecret)
	v.SetDefault("DEFAULT_LLM", "anthropic")
	v.SetDefault("AI_REPLY_TIMEOUT", 20*time.Second)
	v.SetDefault("BUSINESS_NAME", "AutoShine Detailing")
	v.SetDefault("LIVE_BUFFER_SIZE", 64)
	v.SetDefault("RATE_LIMIT_REQUESTS", 60)
	v.SetDefault("RATE_LIMIT_WINDOW", time.Minute)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("TRACING_ENDPOINT", "localhost:4318")
	v.SetDefault("TRACING_ENABLED", false)
}

// Load reads configuration from environment variables and, when CONFIG_FILE
// is set, from that file. Environment variables win.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		ServerPort:         v.GetString("PORT"),
		ServerReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
		ServerWriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
		PublicBaseURL:      v.GetString("PUBLIC_BASE_URL"),
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),

		DatabaseURL: v.GetString("DATABASE_URL"),

		NATSURL:      v.GetString("NATS_URL"),
		NATSCAFile:   v.GetString("NATS_CA_FILE"),
		NATSCertFile: v.GetString("NATS_CERT_FILE"),
		NATSKeyFile:  v.GetString("NATS_KEY_FILE"),
		NATSToken:    v.GetString("NATS_TOKEN"),

		RedisURL:   v.GetString("REDIS_URL"),
		AlertQueue: v.GetString("ALERT_QUEUE"),

		TwilioAccountSID:        v.GetString("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:         v.GetString("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:        v.GetString("TWILIO_FROM_NUMBER"),
		TwilioValidateSignature: v.GetBool("TWILIO_VALIDATE_SIGNATURE"),
		OwnerPhone:              v.GetString("OWNER_PHONE"),

		JWTSecret: v.GetString("JWT_SECRET"),

		AnthropicAPIKey: v.GetString("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    v.GetString("OPENAI_API_KEY"),
		DefaultLLM:      strings.ToLower(v.GetString("DEFAULT_LLM")),
		LLMModel:        v.GetString("LLM_MODEL"),
		AIReplyTimeout:  v.GetDuration("AI_REPLY_TIMEOUT"),
		BusinessName:    v.GetString("BUSINESS_NAME"),

		LiveBufferSize: v.GetInt("LIVE_BUFFER_SIZE"),

		RateLimitRequests: v.GetInt("RATE_LIMIT_REQUESTS"),
		RateLimitWindow:   v.GetDuration("RATE_LIMIT_WINDOW"),

		LogLevel: v.GetString("LOG_LEVEL"),

		TracingEndpoint: v.GetString("TRACING_ENDPOINT"),
		TracingEnabled:  v.GetBool("TRACING_ENABLED"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if c.AIReplyTimeout <= 0 {
		errs = append(errs, errors.New("AI_REPLY_TIMEOUT must be positive"))
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive"))
	}
	switch c.DefaultLLM {
	case "anthropic", "openai":
	default:
		errs = append(errs, fmt.Errorf("DEFAULT_LLM must be anthropic or openai, got %q", c.DefaultLLM))
	}
	if c.TwilioAccountSID != "" && (c.TwilioAuthToken == "" || c.TwilioFromNumber == "") {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER are required with TWILIO_ACCOUNT_SID"))
	}
	return errors.Join(errs...)
}

// SMSEnabled reports whether outbound SMS goes through Twilio.
func (c *Config) SMSEnabled() bool {
	return c.TwilioAccountSID != ""
}

// InsecureJWTSecret reports whether the built-in development secret is in use.
func (c *Config) InsecureJWTSecret() bool {
	return c.JWTSecret == devJWTSecret
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
