package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("SessionTTL = %v, want 24h", cfg.SessionTTL)
	}
	if cfg.IdleTimeout != 60*time.Second {
		t.Fatalf("IdleTimeout = %v, want 60s", cfg.IdleTimeout)
	}
	if cfg.TransformLimit != 10 || cfg.DeliverLimit != 5 {
		t.Fatalf("limits = %d/%d, want 10/5", cfg.TransformLimit, cfg.DeliverLimit)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin should default to true for the kiosk front end")
	}
	if cfg.GatewayMode != "auto" {
		t.Fatalf("GatewayMode = %q, want %q", cfg.GatewayMode, "auto")
	}
}

func TestLoadRejectsShortIdleTimeout(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_IDLE_TIMEOUT", "1s")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() should reject APP_IDLE_TIMEOUT below 5s")
	}
}

func TestLoadUsesExplicitGatewayURL(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("AI_GATEWAY_URL", "http://localhost:7777/v1/chat/completions")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GatewayURL != "http://localhost:7777/v1/chat/completions" {
		t.Fatalf("GatewayURL = %q, want explicit value", cfg.GatewayURL)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_SESSION_TTL",
		"APP_SESSION_STATE_PATH",
		"APP_IDLE_TIMEOUT",
		"APP_DISPLAY_DELAY",
		"APP_TRANSFORM_LIMIT",
		"APP_TRANSFORM_WINDOW",
		"APP_DELIVER_LIMIT",
		"APP_DELIVER_WINDOW",
		"AI_GATEWAY_MODE",
		"AI_GATEWAY_URL",
		"AI_GATEWAY_API_KEY",
		"AI_GATEWAY_MODEL",
		"AI_GATEWAY_TIMEOUT",
		"MAIL_MODE",
		"RESEND_API_KEY",
		"RESEND_BASE_URL",
		"MAIL_FROM",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
