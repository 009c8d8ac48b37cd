package app

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Issuer string // Issuer claim for session tokens

	DatabaseFile string // Path to the SQLite database file (default: ./auth.db)
	PepperFile   string // Path to the password hashing pepper file (default: ./pepper)
	CacheFile    string // Path to the last-known-good profile cache (default: ./profile.json)

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: json)

	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)

	SessionTTL       time.Duration // Session token lifetime (default: 12h)
	ReconcileTimeout time.Duration // Session bootstrap watchdog (default: 15s)

	MaxLoginAttempts int           // Failed attempts before lockout (default: 5)
	LockDuration     time.Duration // Lockout window length (default: 15m)

	RetentionInterval time.Duration // Activity prune cadence (default: 1h)
	ActivityMaxAge    time.Duration // Activity entries older than this are pruned (default: 90 days)

	BootstrapUsername string // First-run root credential username (default: admin)
	BootstrapPassword string // First-run root credential password (default: admin123)
	BootstrapEmail    string
	BootstrapFullName string
}

func LoadConfig() Config {
	// A local .env file overrides nothing already exported.
	_ = godotenv.Load()

	return Config{
		Issuer:       getEnvOrDefault("AUTH_ISSUER", "tallyauth"),
		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:   getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		CacheFile:    getEnvOrDefault("AUTH_PROFILE_CACHE_FILE", "profile.json"),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),

		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),

		SessionTTL:       getEnvDurationOrDefault("AUTH_SESSION_TTL", 12*time.Hour),
		ReconcileTimeout: getEnvDurationOrDefault("AUTH_RECONCILE_TIMEOUT", 15*time.Second),

		MaxLoginAttempts: getEnvIntOrDefault("AUTH_MAX_LOGIN_ATTEMPTS", 5),
		LockDuration:     getEnvDurationOrDefault("AUTH_LOCK_DURATION", 15*time.Minute),

		RetentionInterval: getEnvDurationOrDefault("AUTH_RETENTION_INTERVAL", 1*time.Hour),
		ActivityMaxAge:    getEnvDurationOrDefault("AUTH_ACTIVITY_MAX_AGE", 90*24*time.Hour),

		BootstrapUsername: getEnvOrDefault("AUTH_BOOTSTRAP_USERNAME", "admin"),
		BootstrapPassword: getEnvOrDefault("AUTH_BOOTSTRAP_PASSWORD", "admin123"),
		BootstrapEmail:    getEnvOrDefault("AUTH_BOOTSTRAP_EMAIL", "admin@localhost"),
		BootstrapFullName: getEnvOrDefault("AUTH_BOOTSTRAP_FULL_NAME", "Administrator"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Plain integers are treated as minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
