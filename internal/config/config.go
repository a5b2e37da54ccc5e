package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultDBPath = "./data/movies_bot.db"

// StoreConfig is enough to open the history database for inspection.
type StoreConfig struct {
	DBPath string
}

// LoadStoreConfig reads the history database location from the environment.
func LoadStoreConfig() StoreConfig {
	LoadDotEnv()
	return StoreConfig{DBPath: envOrDefault("KINOBOT_DB_PATH", defaultDBPath)}
}

// BotConfig holds configuration for the bot process.
type BotConfig struct {
	BotToken        string
	TelegramAPIBase string
	PollTimeout     int
	SleepSeconds    int
	DropPending     bool
	MaxConcurrent   int

	PendingWindowSeconds int64
	PendingMaxMessages   int

	CatalogAPIKey  string
	CatalogURL     string
	CatalogTimeout time.Duration

	VideoToken      string
	VideoURL        string
	VideoAPIVersion string
	VideoTimeout    time.Duration
	VideoMaxResults int

	DBPath       string
	HistoryLimit int
	StatsLimit   int

	LogLevel  string
	LogFormat string
}

// LoadBotConfig reads bot configuration from the environment (after .env
// files) and refuses to start without the three secrets.
func LoadBotConfig() (BotConfig, error) {
	LoadDotEnv()

	botToken := os.Getenv("BOT_TOKEN")
	if botToken == "" {
		return BotConfig{}, fmt.Errorf("BOT_TOKEN is required in environment")
	}
	catalogKey := os.Getenv("KINO_TOKEN")
	if catalogKey == "" {
		return BotConfig{}, fmt.Errorf("KINO_TOKEN is required in environment")
	}
	videoToken := envOrDefault("VK_TOKEN", os.Getenv("vk_token"))
	if videoToken == "" {
		return BotConfig{}, fmt.Errorf("VK_TOKEN is required in environment")
	}

	apiRoot := strings.TrimRight(envOrDefault("TELEGRAM_API_URL", "https://api.telegram.org"), "/")

	cfg := BotConfig{
		BotToken:        botToken,
		TelegramAPIBase: fmt.Sprintf("%s/bot%s", apiRoot, botToken),
		PollTimeout:     envIntOrDefault("TG_TIMEOUT", 30),
		SleepSeconds:    envIntOrDefault("TG_SLEEP_SECONDS", 1),
		DropPending:     envBoolOrDefault("TG_DROP_PENDING", true),
		MaxConcurrent:   envIntOrDefault("KINOBOT_MAX_CONCURRENT_UPDATES", 8),

		PendingWindowSeconds: int64(envIntOrDefault("TG_PENDING_WINDOW_SECONDS", 0)),
		PendingMaxMessages:   envIntOrDefault("TG_PENDING_MAX_MESSAGES", 50),

		CatalogAPIKey:  catalogKey,
		CatalogURL:     envOrDefault("KINO_API_URL", "https://api.poiskkino.dev/v1.4/movie/search"),
		CatalogTimeout: time.Duration(envIntOrDefault("KINO_TIMEOUT_SECONDS", 30)) * time.Second,

		VideoToken:      videoToken,
		VideoURL:        envOrDefault("VK_API_URL", "https://api.vk.com/method/video.search"),
		VideoAPIVersion: envOrDefault("VK_API_VERSION", "5.199"),
		VideoTimeout:    time.Duration(envIntOrDefault("VK_TIMEOUT_SECONDS", 10)) * time.Second,
		VideoMaxResults: envIntOrDefault("VK_MAX_RESULTS", 3),

		DBPath:       envOrDefault("KINOBOT_DB_PATH", defaultDBPath),
		HistoryLimit: envIntOrDefault("KINOBOT_HISTORY_LIMIT", 10),
		StatsLimit:   envIntOrDefault("KINOBOT_STATS_LIMIT", 10),

		LogLevel:  envOrDefault("KINOBOT_LOG_LEVEL", "info"),
		LogFormat: envOrDefault("KINOBOT_LOG_FORMAT", "json"),
	}
	if err := cfg.validate(); err != nil {
		return BotConfig{}, err
	}
	return cfg, nil
}

func (c BotConfig) validate() error {
	positive := []struct {
		key string
		val int
	}{
		{"KINO_TIMEOUT_SECONDS", int(c.CatalogTimeout / time.Second)},
		{"VK_TIMEOUT_SECONDS", int(c.VideoTimeout / time.Second)},
		{"VK_MAX_RESULTS", c.VideoMaxResults},
		{"KINOBOT_HISTORY_LIMIT", c.HistoryLimit},
		{"KINOBOT_STATS_LIMIT", c.StatsLimit},
		{"KINOBOT_MAX_CONCURRENT_UPDATES", c.MaxConcurrent},
	}
	for _, p := range positive {
		if p.val <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.key, p.val)
		}
	}
	if c.PollTimeout < 0 {
		return fmt.Errorf("TG_TIMEOUT must not be negative, got %d", c.PollTimeout)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("KINOBOT_LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	return nil
}

// LoadDotEnv loads .env files with priority: .env.local > .env.
// godotenv.Load does not overwrite variables that are already set, so the
// process environment always wins. Returns the files actually loaded.
func LoadDotEnv() []string {
	candidates := []string{".env.local", ".env"}
	var loaded []string
	for _, f := range candidates {
		if _, err := os.Stat(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	if len(loaded) > 0 {
		_ = godotenv.Load(loaded...)
	}
	return loaded
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}
