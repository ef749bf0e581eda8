package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the bot
type Config struct {
	// Discord
	DiscordToken string
	AdminUserID  string

	// Steam
	SteamAPIKey      string
	FetchTimeout     time.Duration
	FetchConcurrency int

	// Database
	DatabasePath string

	// Checking
	CheckInterval             time.Duration
	CommunityBanStopsTracking bool

	// Access
	AllowRequests bool

	// Messages
	Language string

	// Metrics, empty disables the endpoint
	MetricsAddr string

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from the current environment
func FromEnv() (*Config, error) {
	cfg := &Config{
		DiscordToken: os.Getenv("DISCORD_BOT_TOKEN"),
		AdminUserID:  os.Getenv("DISCORD_ADMIN_USER_ID"),
		SteamAPIKey:  os.Getenv("STEAM_API_KEY"),
		DatabasePath: getEnvOrDefault("DATABASE_PATH", "./data/bot.db"),
		Language:     getEnvOrDefault("MESSAGES_LANG", "en"),
		MetricsAddr:  os.Getenv("METRICS_ADDR"),
		LogLevel:     getEnvOrDefault("LOG_LEVEL", "info"),
	}

	interval, err := getIntOrDefault("CHECK_INTERVAL_MINUTES", 10)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = 10
	}
	cfg.CheckInterval = time.Duration(interval) * time.Minute

	timeout, err := getIntOrDefault("FETCH_TIMEOUT_SECONDS", 15)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 15
	}
	cfg.FetchTimeout = time.Duration(timeout) * time.Second

	cfg.FetchConcurrency, err = getIntOrDefault("FETCH_CONCURRENCY", 2)
	if err != nil {
		return nil, err
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 1
	}

	if cfg.AllowRequests, err = getBoolOrDefault("ALLOW_REQUESTS", true); err != nil {
		return nil, err
	}
	if cfg.CommunityBanStopsTracking, err = getBoolOrDefault("COMMUNITY_BAN_STOPS_TRACKING", false); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}
	if cfg.AdminUserID == "" {
		return nil, fmt.Errorf("DISCORD_ADMIN_USER_ID is required")
	}
	if cfg.SteamAPIKey == "" {
		return nil, fmt.Errorf("STEAM_API_KEY is required")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBoolOrDefault(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
