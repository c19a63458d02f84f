package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.AIReplyTimeout != 20*time.Second {
		t.Errorf("AIReplyTimeout = %v, want 20s", cfg.AIReplyTimeout)
	}
	if cfg.DatabaseURL != "" || cfg.NATSURL != "" || cfg.RedisURL != "" {
		t.Errorf("external services enabled by default: %+v", cfg)
	}
	if !cfg.TwilioValidateSignature {
		t.Error("signature validation disabled by default")
	}
	if !cfg.InsecureJWTSecret() {
		t.Error("default JWT secret not reported as insecure")
	}
	if cfg.SMSEnabled() {
		t.Error("SMS enabled without Twilio credentials")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("AI_REPLY_TIMEOUT", "5s")
	t.Setenv("DEFAULT_LLM", "OpenAI")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://autoshine.example, https://admin.autoshine.example ,")
	t.Setenv("TWILIO_VALIDATE_SIGNATURE", "false")
	t.Setenv("LIVE_BUFFER_SIZE", "128")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.AIReplyTimeout != 5*time.Second {
		t.Errorf("AIReplyTimeout = %v, want 5s", cfg.AIReplyTimeout)
	}
	if cfg.DefaultLLM != "openai" {
		t.Errorf("DefaultLLM = %q, want openai", cfg.DefaultLLM)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://admin.autoshine.example" {
		t.Errorf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
	if cfg.TwilioValidateSignature {
		t.Error("TwilioValidateSignature = true, want false")
	}
	if cfg.LiveBufferSize != 128 {
		t.Errorf("LiveBufferSize = %d, want 128", cfg.LiveBufferSize)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desk.yaml")
	if err := os.WriteFile(path, []byte("BUSINESS_NAME: Shine Bros\nOWNER_PHONE: \"+15550009999\"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("OWNER_PHONE", "+15550001111")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BusinessName != "Shine Bros" {
		t.Errorf("BusinessName = %q, want Shine Bros", cfg.BusinessName)
	}
	if cfg.OwnerPhone != "+15550001111" {
		t.Errorf("OwnerPhone = %q, environment should win", cfg.OwnerPhone)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown provider":     {"DEFAULT_LLM": "llama"},
		"zero timeout":         {"AI_REPLY_TIMEOUT": "0s"},
		"partial twilio":       {"TWILIO_ACCOUNT_SID": "AC123"},
		"non-positive ratelim": {"RATE_LIMIT_REQUESTS": "0"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("Load succeeded, want error")
			}
		})
	}
}
