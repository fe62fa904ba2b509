package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Submission transports understood by the client.
const (
	TransportREST = "rest"
	TransportWS   = "ws"
)

// Config holds all application configuration.
type Config struct {
	LogLevel  string
	LogFormat string

	// PortalURL is the base URL of the portal API, without the /api/v1 suffix.
	PortalURL       string
	PortalToken     string
	SubmitTransport string
	RequestTimeout  time.Duration

	// RedisURL backs the pending-answers stash. An unreachable Redis disables stashing.
	RedisURL string
	StashTTL time.Duration

	// Portal stub settings.
	StubPort     string
	GinMode      string
	JWTSecret    string
	JWTExpiry    time.Duration
	ExamSeedFile string
	// SubmitRateLimit is submissions per student per minute; 0 disables limiting.
	SubmitRateLimit int
	// AllowedOrigins controls HTTP CORS and WebSocket origin validation.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env file if present but does not fail if missing.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "pretty"),
		PortalURL:       strings.TrimRight(getEnv("PORTAL_URL", "http://localhost:8080"), "/"),
		PortalToken:     getEnv("PORTAL_TOKEN", ""),
		SubmitTransport: parseTransport(getEnv("SUBMIT_TRANSPORT", TransportREST)),
		RequestTimeout:  time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
		StashTTL:        time.Duration(getEnvInt("STASH_TTL_HOURS", 72)) * time.Hour,
		StubPort:        getEnv("STUB_PORT", "8080"),
		GinMode:         getEnv("GIN_MODE", "debug"),
		JWTSecret:       getEnv("JWT_SECRET", "change-this-to-a-secure-random-string"),
		JWTExpiry:       time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
		ExamSeedFile:    getEnv("EXAM_SEED_FILE", "./exams.json"),
		SubmitRateLimit: getEnvInt("SUBMIT_RATE_LIMIT", 10),
		AllowedOrigins:  parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
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

// parseTransport normalizes SUBMIT_TRANSPORT; unknown values fall back to REST.
func parseTransport(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), TransportWS) {
		return TransportWS
	}
	return TransportREST
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
