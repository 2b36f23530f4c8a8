package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
)

// Config holds application configuration
type Config struct {
	Port          string
	DBConn        string
	LogLevel      string
	JWTSecret     string
	HMACSecret    string
	EncryptionKey string
	CardPrefix    string
	CardLength    int
	CardTermYears int
	SweepSchedule string
	SMTPHost      string
	SMTPPort      string
	SMTPUsername  string
	SMTPPassword  string
	SenderEmail   string
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cardLength, err := strconv.Atoi(getEnv("CARD_LENGTH", "16"))
	if err != nil {
		return nil, fmt.Errorf("CARD_LENGTH must be a number: %w", err)
	}
	cardTerm, err := strconv.Atoi(getEnv("CARD_TERM_YEARS", "5"))
	if err != nil {
		return nil, fmt.Errorf("CARD_TERM_YEARS must be a number: %w", err)
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DBConn:        getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=bank sslmode=disable"),
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:     getEnv("JWT_SECRET", "secret"),
		HMACSecret:    getEnv("HMAC_SECRET", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"),
		EncryptionKey: getEnv("ENCRYPTION_KEY", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"),
		CardPrefix:    getEnv("CARD_PREFIX", "400000"),
		CardLength:    cardLength,
		CardTermYears: cardTerm,
		SweepSchedule: getEnv("SWEEP_SCHEDULE", "0 0 * * *"),
		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      getEnv("SMTP_PORT", "587"),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SenderEmail:   getEnv("SENDER_EMAIL", "noreply@cardhub.local"),
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.HMACSecret == "" {
		return nil, fmt.Errorf("HMAC_SECRET is required")
	}
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if _, err := hex.DecodeString(cfg.EncryptionKey); err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be hex-encoded: %w", err)
	}
	if cfg.CardLength < len(cfg.CardPrefix) || cfg.CardLength > 19 {
		return nil, fmt.Errorf("invalid CARD_LENGTH: %d", cfg.CardLength)
	}
	if cfg.CardTermYears <= 0 {
		return nil, fmt.Errorf("CARD_TERM_YEARS must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
