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
	BotID        string

	// OperatorChannelID receives errors no guild channel could take
	OperatorChannelID string

	// Torn API
	TornAPIURL string
	APITimeout time.Duration

	// Database
	DatabasePath string

	// GuildsFile is an optional YAML file imported at startup
	GuildsFile string

	// Scheduling
	SchedulerTick        time.Duration
	ReconcileConcurrency int

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg, err := LoadStorage()
	if err != nil {
		return nil, err
	}

	cfg.DiscordToken = os.Getenv("DISCORD_BOT_TOKEN")

	// Validate required fields
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}

	return cfg, nil
}

// LoadStorage reads the configuration without requiring chat credentials,
// for commands that only touch the database
func LoadStorage() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		BotID:             os.Getenv("BOT_ID"),
		OperatorChannelID: os.Getenv("OPERATOR_CHANNEL_ID"),
		TornAPIURL:        getEnvOrDefault("TORN_API_URL", "https://api.torn.com"),
		DatabasePath:      getEnvOrDefault("DATABASE_PATH", "./data/bot.db"),
		GuildsFile:        os.Getenv("GUILDS_FILE"),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
	}

	timeout, err := getPositiveInt("API_TIMEOUT_SECONDS", 10)
	if err != nil {
		return nil, err
	}
	cfg.APITimeout = time.Duration(timeout) * time.Second

	tick, err := getPositiveInt("SCHEDULER_TICK_MINUTES", 60)
	if err != nil {
		return nil, err
	}
	cfg.SchedulerTick = time.Duration(tick) * time.Minute

	if cfg.ReconcileConcurrency, err = getPositiveInt("RECONCILE_CONCURRENCY", 1); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getPositiveInt(key string, defaultValue int) (int, error) {
	n, err := strconv.Atoi(getEnvOrDefault(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return n, nil
}
