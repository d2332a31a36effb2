// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultBotUsername is the bot the buy-credits deep link points at.
const DefaultBotUsername = "TinyAgents_bot"

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	DBPath          string
	SessionTTL      time.Duration
	BackgroundColor string
	GRPCHealthAddr  string // empty disables the gRPC health server
	Telegram        TelegramConfig
	Credits         CreditsConfig
	RateLimit       RateLimitConfig
}

// TelegramConfig controls the bot webhook and Mini App init data checks.
type TelegramConfig struct {
	BotToken       string
	BotUsername    string
	APIURL         string
	WebhookSecret  string
	InitDataMaxAge time.Duration
}

// CreditsConfig controls credit gating for bot commands.
type CreditsConfig struct {
	Enforced bool
}

// RateLimitConfig bounds message sends per user.
type RateLimitConfig struct {
	RequestsPerMinute int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	rpm := getEnvInt("RATE_LIMIT_PER_MINUTE", 30)
	if rpm <= 0 {
		rpm = 30
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		FrontendURL:     getEnv("FRONTEND_URL", ""),
		DBPath:          getEnv("DB_PATH", "./data/tinyagents.db"),
		SessionTTL:      getEnvDuration("SESSION_TTL", 60*time.Minute),
		BackgroundColor: getEnv("BACKGROUND_COLOR", "#667eea"),
		GRPCHealthAddr:  getEnv("GRPC_HEALTH_ADDR", ":9090"),
		Telegram: TelegramConfig{
			BotToken:       getEnv("TELEGRAM_BOT_TOKEN", ""),
			BotUsername:    getEnv("TELEGRAM_BOT_USERNAME", DefaultBotUsername),
			APIURL:         getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
			WebhookSecret:  getEnv("TELEGRAM_WEBHOOK_SECRET", ""),
			InitDataMaxAge: getEnvDuration("INIT_DATA_MAX_AGE", 24*time.Hour),
		},
		Credits: CreditsConfig{
			Enforced: getEnvBool("CREDITS_ENFORCED", false),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: rpm,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.Telegram.BotUsername == "" {
		return fmt.Errorf("TELEGRAM_BOT_USERNAME cannot be empty")
	}
	if c.Telegram.APIURL == "" {
		return fmt.Errorf("TELEGRAM_API_URL cannot be empty")
	}
	if c.Telegram.InitDataMaxAge < 0 {
		return fmt.Errorf("INIT_DATA_MAX_AGE cannot be negative")
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// BotEnabled reports whether a bot token is configured.
func (c *Config) BotEnabled() bool {
	return c.Telegram.BotToken != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
