package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/stemsi/prova-engine/internal/exam"
)

// Config holds all application configuration: the client's backend endpoint,
// the engine's periodic intervals and the practice server's HTTP settings.
type Config struct {
	LogLevel  string
	LogFormat string

	// Backend collaborator (examclient).
	BackendBaseURL string
	BackendToken   string
	BackendTimeout time.Duration

	// Engine intervals.
	TickInterval              time.Duration
	AutosaveInterval          time.Duration
	HeartbeatInterval         time.Duration
	ActivationPollInterval    time.Duration
	MessagePollOpen           time.Duration
	MessagePollClosed         time.Duration
	MessageMatchWindow        time.Duration
	HeartbeatFailureThreshold int

	// Practice server (mockserver).
	ServerPort string
	GinMode    string
	// AllowedOrigins controls HTTP CORS on the practice server.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load() // Ignore error — .env is optional

	return &Config{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "pretty"),

		BackendBaseURL: getEnv("BACKEND_BASE_URL", "http://localhost:8080/api/v1"),
		BackendToken:   getEnv("BACKEND_TOKEN", ""),
		BackendTimeout: getEnvSeconds("BACKEND_TIMEOUT_SECONDS", 10),

		TickInterval:              getEnvSeconds("TICK_INTERVAL_SECONDS", 1),
		AutosaveInterval:          getEnvSeconds("AUTOSAVE_INTERVAL_SECONDS", 30),
		HeartbeatInterval:         getEnvSeconds("HEARTBEAT_INTERVAL_SECONDS", 3),
		ActivationPollInterval:    getEnvSeconds("ACTIVATION_POLL_SECONDS", 3),
		MessagePollOpen:           getEnvSeconds("MESSAGE_POLL_OPEN_SECONDS", 2),
		MessagePollClosed:         getEnvSeconds("MESSAGE_POLL_CLOSED_SECONDS", 10),
		MessageMatchWindow:        getEnvSeconds("MESSAGE_MATCH_WINDOW_SECONDS", 15),
		HeartbeatFailureThreshold: getEnvInt("HEARTBEAT_FAILURE_THRESHOLD", 3),

		ServerPort:     getEnv("SERVER_PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
	}
}

// EngineOptions maps the interval settings onto the engine's option struct.
func (c *Config) EngineOptions() exam.Options {
	return exam.Options{
		TickInterval:              c.TickInterval,
		AutosaveInterval:          c.AutosaveInterval,
		HeartbeatInterval:         c.HeartbeatInterval,
		ActivationPollInterval:    c.ActivationPollInterval,
		MessagePollOpen:           c.MessagePollOpen,
		MessagePollClosed:         c.MessagePollClosed,
		MessageMatchWindow:        c.MessageMatchWindow,
		HeartbeatFailureThreshold: c.HeartbeatFailureThreshold,
		CallTimeout:               c.BackendTimeout,
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

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
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
