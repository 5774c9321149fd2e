package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Env != "dev" {
		t.Errorf("env = %q, want dev", cfg.Env)
	}
	if cfg.APIBaseURL != "http://localhost:8080" {
		t.Errorf("api base url = %q", cfg.APIBaseURL)
	}
	if cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("http timeout = %v", cfg.HTTPTimeout)
	}
	if cfg.ConnectAttempts != 5 || cfg.PageSize != 50 {
		t.Errorf("attempts = %d, page size = %d", cfg.ConnectAttempts, cfg.PageSize)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("SOCKET_URL", "wss://chat.example.com/ws")
	t.Setenv("PING_INTERVAL", "45s")
	t.Setenv("CHAT_PAGE_SIZE", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Env != "prod" {
		t.Errorf("env = %q", cfg.Env)
	}
	if cfg.SocketURL != "wss://chat.example.com/ws" {
		t.Errorf("socket url = %q", cfg.SocketURL)
	}
	if cfg.PingInterval != 45*time.Second {
		t.Errorf("ping interval = %v", cfg.PingInterval)
	}
	if cfg.PageSize != 25 {
		t.Errorf("page size = %d", cfg.PageSize)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		key   string
		value string
	}{
		{"HTTP_TIMEOUT", "soon"},
		{"CHAT_PAGE_SIZE", "-3"},
		{"API_BASE_URL", "ftp://example.com"},
		{"SOCKET_URL", "http://example.com/ws"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("%s=%q accepted", tc.key, tc.value)
			}
		})
	}
}
