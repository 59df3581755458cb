package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer         string // Issuer claim for tokens (default: insight-auth)
	JWTSecret      string // Required: HS256 signing secret (min 32 bytes)
	ProvisionToken string // Optional: token required to provision users after the first

	AccessTokenTTL  time.Duration // Access token lifetime (default: 1h)
	RefreshTokenTTL time.Duration // Refresh token lifetime (default: 720h / 30 days)
	TOTPSkew        uint          // TOTP steps accepted either side of now (default: 1)

	DatabaseFile string // Path to SQLite database file (default: ./auth.db)
	PepperFile   string // Path to password hashing pepper file (default: ./pepper)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:         getEnvOrDefault("AUTH_ISSUER", "insight-auth"),
		JWTSecret:      os.Getenv("AUTH_JWT_SECRET"),
		ProvisionToken: os.Getenv("AUTH_PROVISION_TOKEN"),

		AccessTokenTTL:  getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL: getEnvDurationOrDefault("AUTH_REFRESH_TOKEN_TTL", 30*24*time.Hour),

		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:   getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	// TOTP skew: 1 step (30s either side) unless overridden
	cfg.TOTPSkew = 1
	if skewStr := os.Getenv("AUTH_TOTP_SKEW"); skewStr != "" {
		if skew, err := strconv.Atoi(skewStr); err == nil && skew >= 0 {
			cfg.TOTPSkew = uint(skew)
		}
	}

	return cfg
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

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
