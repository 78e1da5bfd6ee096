package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Dan9191/referral-service/internal/utils"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds application configuration
type Config struct {
	Port        string
	DBConn      string
	StoreDriver string
	DBMigrate   bool
	LogLevel    string

	JWTSecret     string
	JWTExpiration time.Duration
	BcryptCost    int
	AdminEmails   []string

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string

	ReportSchedule   string
	ReportRecipients []string
}

// NewConfig loads configuration from environment variables.
// A .env file in the working directory, if any, is read first and never
// overrides variables already set in the environment. A missing .env is
// fine; an unreadable or malformed one is an error.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DBConn:           getEnv("DB_CONN", "host=localhost port=5432 user=referral password=referral dbname=referral sslmode=disable"),
		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		AdminEmails:      splitList(getEnv("ADMIN_EMAILS", "")),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         getEnv("SMTP_PORT", "587"),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		SenderEmail:      getEnv("SENDER_EMAIL", "no-reply@referral.local"),
		ReportSchedule:   getEnv("REPORT_SCHEDULE", ""),
		ReportRecipients: splitList(getEnv("REPORT_RECIPIENTS", "")),
	}

	var err error
	if cfg.DBMigrate, err = strconv.ParseBool(getEnv("DB_MIGRATE", "true")); err != nil {
		return nil, fmt.Errorf("invalid DB_MIGRATE: %w", err)
	}
	if cfg.JWTExpiration, err = time.ParseDuration(getEnv("JWT_EXPIRATION", "24h")); err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRATION: %w", err)
	}
	if cfg.BcryptCost, err = strconv.Atoi(getEnv("BCRYPT_COST", strconv.Itoa(bcrypt.DefaultCost))); err != nil {
		return nil, fmt.Errorf("invalid BCRYPT_COST: %w", err)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.JWTExpiration <= 0 {
		return nil, fmt.Errorf("JWT_EXPIRATION must be positive")
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DBConn == "" {
			return nil, fmt.Errorf("DB_CONN is required")
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.ReportSchedule != "" && len(cfg.ReportRecipients) == 0 {
		return nil, fmt.Errorf("REPORT_RECIPIENTS is required when REPORT_SCHEDULE is set")
	}

	for i, admin := range cfg.AdminEmails {
		cfg.AdminEmails[i] = utils.NormalizeEmail(admin)
	}

	return cfg, nil
}

// IsAdmin reports whether email belongs to a configured administrator.
// Emails are compared in normalized form, the same form accounts are stored in.
func (c *Config) IsAdmin(email string) bool {
	email = utils.NormalizeEmail(email)
	for _, admin := range c.AdminEmails {
		if admin == email {
			return true
		}
	}
	return false
}

// MailEnabled reports whether SMTP delivery is configured
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != ""
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
