package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server ServerConfig
	SMTP   SMTPConfig
	Limits LimitsConfig
	Scrape ScrapeConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// SMTPConfig holds outbound mail configuration. The password is expected to
// be an app-scoped credential, never the account's primary password.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	FromName string
	Timeout  time.Duration
}

// LimitsConfig holds the security limits enforced on submissions
type LimitsConfig struct {
	MaxEmailsPerHour int
	MaxPDFSizeMB     int
	MaxImageSizeMB   int
	MaxTextInput     int
	MaxTextArea      int
	MaxEmailLength   int
}

// ScrapeConfig holds settings for fetching supplementary insurer content
type ScrapeConfig struct {
	Timeout   time.Duration
	MaxItems  int
	UserAgent string
	CacheTTL  time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getIntEnv("SMTP_PORT", 587),
			User:     getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASS", ""),
			FromName: getEnv("SMTP_FROM_NAME", "PETSHEALTH"),
			Timeout:  getDurationEnv("SMTP_TIMEOUT_SECONDS", 30*time.Second),
		},
		Limits: LimitsConfig{
			MaxEmailsPerHour: getIntEnv("MAX_EMAILS_PER_HOUR", 20),
			MaxPDFSizeMB:     getIntEnv("MAX_PDF_SIZE_MB", 25),
			MaxImageSizeMB:   getIntEnv("MAX_IMAGE_SIZE_MB", 10),
			MaxTextInput:     getIntEnv("MAX_TEXT_INPUT_LENGTH", 500),
			MaxTextArea:      getIntEnv("MAX_TEXT_AREA_LENGTH", 5000),
			MaxEmailLength:   getIntEnv("MAX_EMAIL_LENGTH", 254),
		},
		Scrape: ScrapeConfig{
			Timeout:   getDurationEnv("WEB_SCRAPE_TIMEOUT_SECONDS", 20*time.Second),
			MaxItems:  getIntEnv("WEB_SCRAPE_MAX_ITEMS", 18),
			UserAgent: getEnv("WEB_SCRAPE_USER_AGENT", "Mozilla/5.0 (PETSHEALTH/1.0; +https://www.petshealth.gr)"),
			CacheTTL:  getDurationEnv("WEB_SCRAPE_CACHE_TTL_SECONDS", time.Hour),
		},
	}
}

// Validate checks that all required configuration is present. A failure here
// is fatal: the service must refuse to start rather than surface missing
// credentials as per-request errors.
func (c *Config) Validate() error {
	if c.SMTP.User == "" {
		return fmt.Errorf("SMTP_USER environment variable is required")
	}
	if c.SMTP.Password == "" {
		return fmt.Errorf("SMTP_PASS environment variable is required")
	}
	if c.SMTP.Host == "" {
		return fmt.Errorf("SMTP_HOST must not be empty")
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("SMTP_PORT %d is out of range", c.SMTP.Port)
	}
	if c.Limits.MaxEmailsPerHour <= 0 {
		return fmt.Errorf("MAX_EMAILS_PER_HOUR must be positive")
	}
	return nil
}

// Addr returns the host:port the HTTP server listens on
func (s *ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv returns an integer from environment variable or default
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getDurationEnv returns a duration in seconds from environment variable or default
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
