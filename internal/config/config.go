package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr string
	ServerPort int

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret       string
	JWTIssuer       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Lockout
	MaxFailedAttempts int
	LockoutDuration   time.Duration

	// Session lifecycle
	SessionTimeout   time.Duration
	RefreshThreshold time.Duration

	// Challenges
	MFAChallengeTTL       time.Duration
	BiometricChallengeTTL time.Duration

	// Collaborator calls
	VerifyTimeout time.Duration

	// Federated providers (optional)
	GoogleClientID    string
	GitHubClientID    string
	MicrosoftClientID string
	DiscordClientID   string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		// Server defaults
		ServerAddr: getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),

		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "authcore"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// JWT defaults
		JWTSecret:       getEnv("JWT_SECRET", ""),
		JWTIssuer:       getEnv("JWT_ISSUER", "authcore"),
		AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 24*time.Hour),
		RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),

		// Lockout defaults
		MaxFailedAttempts: getEnvInt("MAX_FAILED_ATTEMPTS", 5),
		LockoutDuration:   getEnvDuration("LOCKOUT_DURATION", 15*time.Minute),

		// Session lifecycle defaults
		SessionTimeout:   getEnvDuration("SESSION_TIMEOUT", 24*time.Hour),
		RefreshThreshold: getEnvDuration("REFRESH_THRESHOLD", 5*time.Minute),

		// Challenge defaults
		MFAChallengeTTL:       getEnvDuration("MFA_CHALLENGE_TTL", 5*time.Minute),
		BiometricChallengeTTL: getEnvDuration("BIOMETRIC_CHALLENGE_TTL", time.Minute),

		VerifyTimeout: getEnvDuration("VERIFY_TIMEOUT", 10*time.Second),

		// Federated providers (optional)
		GoogleClientID:    getEnv("GOOGLE_CLIENT_ID", ""),
		GitHubClientID:    getEnv("GITHUB_CLIENT_ID", ""),
		MicrosoftClientID: getEnv("MICROSOFT_CLIENT_ID", ""),
		DiscordClientID:   getEnv("DISCORD_CLIENT_ID", ""),
	}

	// Validate required fields
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if cfg.MaxFailedAttempts < 1 {
		return nil, fmt.Errorf("MAX_FAILED_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

// DSN builds the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
