package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env string

	// Client side.
	APIBaseURL      string
	SocketURL       string
	HTTPTimeout     time.Duration
	ConnectAttempts int
	ConnectBackoff  time.Duration
	PingInterval    time.Duration
	PongTimeout     time.Duration
	WriteTimeout    time.Duration
	PageSize        int
	UnreadTTL       time.Duration
	UnreadInterval  time.Duration

	// Dev server side.
	HTTPAddr  string
	JWTSecret string
	TokenTTL  time.Duration
}

// Load parses configuration from the current environment. A .env file in the
// working directory is applied first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:        getEnv("APP_ENV", "dev"),
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8080"),
		SocketURL:  getEnv("SOCKET_URL", "ws://localhost:8080/ws"),
		HTTPAddr:   getEnv("HTTP_ADDR", ":8080"),
		JWTSecret:  getEnv("JWT_SECRET", "dev-only-secret"),
	}

	var err error
	if cfg.HTTPTimeout, err = parseDurationEnv("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ConnectBackoff, err = parseDurationEnv("CONNECT_BACKOFF", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PingInterval, err = parseDurationEnv("PING_INTERVAL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PongTimeout, err = parseDurationEnv("PONG_TIMEOUT", 75*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.WriteTimeout, err = parseDurationEnv("WRITE_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.UnreadTTL, err = parseDurationEnv("UNREAD_TTL", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.UnreadInterval, err = parseDurationEnv("UNREAD_REFRESH_INTERVAL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.TokenTTL, err = parseDurationEnv("TOKEN_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.ConnectAttempts, err = parsePositiveIntEnv("CONNECT_ATTEMPTS", 5); err != nil {
		return Config{}, err
	}
	if cfg.PageSize, err = parsePositiveIntEnv("CHAT_PAGE_SIZE", 50); err != nil {
		return Config{}, err
	}

	if !strings.HasPrefix(cfg.APIBaseURL, "http://") && !strings.HasPrefix(cfg.APIBaseURL, "https://") {
		return Config{}, fmt.Errorf("API_BASE_URL must be an http(s) URL, got %q", cfg.APIBaseURL)
	}
	if !strings.HasPrefix(cfg.SocketURL, "ws://") && !strings.HasPrefix(cfg.SocketURL, "wss://") {
		return Config{}, fmt.Errorf("SOCKET_URL must be a ws(s) URL, got %q", cfg.SocketURL)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parsePositiveIntEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, nil
}
