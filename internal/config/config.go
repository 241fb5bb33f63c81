package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"daily-tracker/internal/logger"
)

const (
	MarkerSQLite = "sqlite"
	MarkerRedis  = "redis"

	FeedMemory = "memory"
	FeedNATS   = "nats"
)

// Config keeps runtime settings for the tracker.
type Config struct {
	DatabaseURL    string
	LocalStatePath string

	MarkerBackend string
	RedisURL      string

	FeedBackend string
	NATSURL     string

	CheckInterval time.Duration
	Location      *time.Location
	HTTPAddr      string

	TelegramToken  string
	ReportInterval time.Duration

	Log logger.Config
}

// Load reads configuration from a .env file, if any, and environment
// variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DatabaseURL:    env("DATABASE_URL"),
		LocalStatePath: env("LOCAL_STATE_PATH"),
		MarkerBackend:  strings.ToLower(env("MARKER_BACKEND")),
		RedisURL:       env("REDIS_URL"),
		FeedBackend:    strings.ToLower(env("FEED_BACKEND")),
		NATSURL:        env("NATS_URL"),
		HTTPAddr:       env("HTTP_ADDR"),
		TelegramToken:  env("TELEGRAM_TOKEN"),
		ReportInterval: parseInterval(env("REPORT_INTERVAL_HOURS")),
		Log:            logger.DefaultConfig(),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "daily_tracker.db"
	}
	if cfg.LocalStatePath == "" {
		cfg.LocalStatePath = "daily_tracker_local.db"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = 5 * time.Hour
	}

	switch cfg.MarkerBackend {
	case "":
		cfg.MarkerBackend = MarkerSQLite
	case MarkerSQLite:
	case MarkerRedis:
		if cfg.RedisURL == "" {
			return cfg, fmt.Errorf("REDIS_URL is required for MARKER_BACKEND=redis")
		}
	default:
		return cfg, fmt.Errorf("unknown MARKER_BACKEND %q", cfg.MarkerBackend)
	}

	switch cfg.FeedBackend {
	case "":
		cfg.FeedBackend = FeedMemory
	case FeedMemory:
	case FeedNATS:
		if cfg.NATSURL == "" {
			return cfg, fmt.Errorf("NATS_URL is required for FEED_BACKEND=nats")
		}
	default:
		return cfg, fmt.Errorf("unknown FEED_BACKEND %q", cfg.FeedBackend)
	}

	cfg.CheckInterval = time.Minute
	if raw := env("ROLLOVER_CHECK_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid ROLLOVER_CHECK_INTERVAL %q", raw)
		}
		cfg.CheckInterval = d
	}

	cfg.Location = time.Local
	if tz := env("TIMEZONE"); tz != "" && tz != "Local" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return cfg, fmt.Errorf("load timezone: %w", err)
		}
		cfg.Location = loc
	}

	if v := env("LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := env("LOG_FORMAT"); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}
	if v := env("LOG_OUTPUT"); v != "" {
		cfg.Log.Output = strings.ToLower(v)
	}
	if v := env("LOG_FILE"); v != "" {
		cfg.Log.FilePath = v
	}

	return cfg, nil
}

// BotEnabled reports whether a Telegram token was configured.
func (c Config) BotEnabled() bool {
	return c.TelegramToken != ""
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}
