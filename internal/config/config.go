// config.go

// Environment variable loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sponsoai/dealdesk/internal/addon"
)

// MinSecretLength mirrors the add-on contract: JWT and add-on shared
// secrets are both HMAC-SHA256 material and share the same floor.
const MinSecretLength = addon.MinSecretLength

// Config holds all env configuration vars for dealdesk.
type Config struct {
	DatabaseURL string
	Port        string
	LogLevel    slog.Level

	// RedisURL is optional -- empty disables the extraction response cache.
	RedisURL string

	// JWTSecret signs bearer tokens for the web app. Required, min 32 chars.
	JWTSecret string
	// JWTTTL is the bearer token lifetime. Default 7 days (168h).
	JWTTTL time.Duration

	// GoogleClientID is the OAuth client ID used as the ID-token audience.
	// Optional -- empty disables /auth/google-login.
	GoogleClientID string

	// GeminiAPIKey authorizes the extraction model. Optional -- empty makes
	// extraction paths fail with a 500 rather than blocking startup.
	GeminiAPIKey string

	// AddonSecret is the shared secret the Gmail add-on signs requests with.
	// Required, min 32 chars. AddonSecretPrevious is the rotation grace slot.
	AddonSecret         string
	AddonSecretPrevious string

	// AdminToken guards the operator-only secret rotation endpoint.
	// Optional -- empty disables the endpoint entirely.
	AdminToken string

	// CORSOrigin is the allowed origin for the web app. Empty disables CORS headers.
	CORSOrigin string

	// Rate limit policy applied per client IP across all routes.
	// Defaults: max=100, window=15m.
	RateMax    int
	RateWindow time.Duration
}

// LoadConfig reads environment variables and returns a validated Config.
// Returns an error if required variables (DATABASE_URL, JWT_SECRET,
// ADDON_SECRET_KEY) are missing or too weak.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	// Secrets are trimmed so a trailing newline in an env file can't silently
	// produce signatures that never verify.
	cfg.JWTSecret = strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < MinSecretLength {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d characters", MinSecretLength)
	}

	cfg.AddonSecret = strings.TrimSpace(os.Getenv("ADDON_SECRET_KEY"))
	if cfg.AddonSecret == "" {
		return nil, fmt.Errorf("ADDON_SECRET_KEY is required")
	}
	if len(cfg.AddonSecret) < MinSecretLength {
		return nil, fmt.Errorf("ADDON_SECRET_KEY must be at least %d characters", MinSecretLength)
	}

	// Previous secret only exists during a rotation grace period.
	cfg.AddonSecretPrevious = strings.TrimSpace(os.Getenv("ADDON_SECRET_KEY_PREVIOUS"))

	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	cfg.AdminToken = strings.TrimSpace(os.Getenv("ADMIN_TOKEN"))
	cfg.CORSOrigin = os.Getenv("CORS_ORIGIN")

	if cfg.GoogleClientID == "" {
		slog.Warn("GOOGLE_CLIENT_ID not set, google sign-in disabled")
	}
	if cfg.GeminiAPIKey == "" {
		slog.Warn("GEMINI_API_KEY not set, extraction requests will fail")
	}

	// Attempt to get port num, default to 3000
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "3000"
	}

	// Parse log level, default to info
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	cfg.JWTTTL = envDuration("JWT_TTL", 168*time.Hour)

	// Rate limit: requests per client IP. If either var is missing or invalid,
	// fall back to the default so a misconfigured env doesn't silently disable limiting.
	cfg.RateMax = envInt("RATE_MAX", 100)
	cfg.RateWindow = envDuration("RATE_WINDOW", 15*time.Minute)

	return cfg, nil
}

// envInt reads an env var as int, returning def if missing or unparseable.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

// envDuration reads an env var as time.Duration, returning def if missing or unparseable.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
