package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all client configuration.
type Config struct {
	APIBaseURL string
	WSURL      string
	LogLevel   string
	LogFormat  string
	// HeartbeatInterval is how often a mounted student view announces
	// liveness on the channel.
	HeartbeatInterval time.Duration
	// DialTimeout bounds a single websocket dial attempt.
	DialTimeout time.Duration
	// ReconnectMaxBackoff caps the exponential backoff between dial attempts.
	ReconnectMaxBackoff time.Duration

	// Simulator settings (cmd/simserver only).
	SimPort     string
	SimGinMode  string
	WarningLead time.Duration
	// AllowedOrigins controls the simulator's CORS and WebSocket origin
	// validation. Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // Ignore error — .env is optional

	return &Config{
		APIBaseURL:          getEnv("API_URL", "http://localhost:3001"),
		WSURL:               getEnv("WS_URL", "ws://localhost:3001/ws"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "pretty"),
		HeartbeatInterval:   time.Duration(getEnvInt("HEARTBEAT_SECONDS", 10)) * time.Second,
		DialTimeout:         time.Duration(getEnvInt("DIAL_TIMEOUT_SECONDS", 10)) * time.Second,
		ReconnectMaxBackoff: time.Duration(getEnvInt("RECONNECT_MAX_BACKOFF_SECONDS", 30)) * time.Second,
		SimPort:             getEnv("SIM_PORT", "3001"),
		SimGinMode:          getEnv("SIM_GIN_MODE", "debug"),
		WarningLead:         time.Duration(getEnvInt("WARNING_LEAD_MINUTES", 5)) * time.Minute,
		AllowedOrigins:      parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
