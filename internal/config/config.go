package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverMock       = "mock"
	DriverClickHouse = "clickhouse"
	DriverPostgres   = "postgres"
)

// Config holds the application configuration
type Config struct {
	Port      string
	LogLevel  string // debug, info, warn or error
	LogFormat string // json or console

	// Telegram bot configuration; the bot is disabled when TelegramToken is empty
	TelegramToken  string
	AllowedUserIDs []int64
	WebhookMode    bool   // If true, use webhook mode; if false, use polling mode
	WebhookURL     string // URL for webhook (required if WebhookMode is true)

	StorageDriver string

	// ClickHouse configuration
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	ClickHouseUseTLS   bool

	// Postgres configuration
	PostgresDSN      string
	PostgresMaxConns int32

	// Redis backs the borrow lock when set; otherwise the lock is process-local
	RedisAddr     string
	RedisPassword string
	BorrowLockTTL time.Duration

	// Fee schedule
	MinDaysLate  int
	FeeTiersFile string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	config := &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}

	switch config.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid LOG_LEVEL: %s", config.LogLevel)
	}
	switch config.LogFormat {
	case "json", "console":
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT: %s", config.LogFormat)
	}

	if err := loadTelegram(config); err != nil {
		return nil, err
	}
	if err := loadStorage(config); err != nil {
		return nil, err
	}

	config.RedisAddr = os.Getenv("REDIS_ADDR")
	config.RedisPassword = os.Getenv("REDIS_PASSWORD")

	ttl, err := time.ParseDuration(getEnv("BORROW_LOCK_TTL", "5s"))
	if err != nil || ttl <= 0 {
		return nil, fmt.Errorf("invalid BORROW_LOCK_TTL: %s", os.Getenv("BORROW_LOCK_TTL"))
	}
	config.BorrowLockTTL = ttl

	minDaysLate, err := strconv.Atoi(getEnv("MIN_DAYS_LATE", "1"))
	if err != nil || minDaysLate < 1 {
		return nil, fmt.Errorf("invalid MIN_DAYS_LATE: must be a whole number of at least 1")
	}
	config.MinDaysLate = minDaysLate
	config.FeeTiersFile = os.Getenv("FEE_TIERS_FILE")

	return config, nil
}

func loadTelegram(config *Config) error {
	config.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if config.TelegramToken == "" {
		return nil
	}

	// Allowed User IDs (required with a token)
	allowedIDsStr := os.Getenv("ALLOWED_USER_IDS")
	if allowedIDsStr == "" {
		return fmt.Errorf("ALLOWED_USER_IDS is required when TELEGRAM_BOT_TOKEN is set (comma-separated list of Telegram user IDs)")
	}

	for _, idStr := range strings.Split(allowedIDsStr, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user ID in ALLOWED_USER_IDS: %s", idStr)
		}
		config.AllowedUserIDs = append(config.AllowedUserIDs, id)
	}

	config.WebhookMode = os.Getenv("WEBHOOK_MODE") == "true"
	if config.WebhookMode {
		config.WebhookURL = strings.TrimRight(os.Getenv("WEBHOOK_URL"), "/")
		if config.WebhookURL == "" {
			return fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_MODE is true")
		}
	}
	return nil
}

func loadStorage(config *Config) error {
	config.StorageDriver = strings.ToLower(getEnv("STORAGE_DRIVER", DriverClickHouse))
	// USE_MOCK_DB keeps working as a shortcut for local runs
	if os.Getenv("USE_MOCK_DB") == "true" {
		config.StorageDriver = DriverMock
	}

	switch config.StorageDriver {
	case DriverMock:
		return nil

	case DriverClickHouse:
		config.ClickHouseHost = os.Getenv("CLICKHOUSE_HOST")
		if config.ClickHouseHost == "" {
			return fmt.Errorf("CLICKHOUSE_HOST is required when STORAGE_DRIVER is clickhouse")
		}

		port, err := strconv.Atoi(getEnv("CLICKHOUSE_PORT", "9000"))
		if err != nil {
			return fmt.Errorf("invalid CLICKHOUSE_PORT: %w", err)
		}
		config.ClickHousePort = port

		config.ClickHouseDatabase = getEnv("CLICKHOUSE_DATABASE", "default")
		config.ClickHouseUser = getEnv("CLICKHOUSE_USER", "default")
		config.ClickHousePassword = os.Getenv("CLICKHOUSE_PASSWORD") // optional
		config.ClickHouseUseTLS = os.Getenv("CLICKHOUSE_USE_TLS") == "true"
		return nil

	case DriverPostgres:
		config.PostgresDSN = os.Getenv("POSTGRES_DSN")
		if config.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when STORAGE_DRIVER is postgres")
		}

		if raw := os.Getenv("POSTGRES_MAX_CONNS"); raw != "" {
			maxConns, err := strconv.ParseInt(raw, 10, 32)
			if err != nil || maxConns < 1 {
				return fmt.Errorf("invalid POSTGRES_MAX_CONNS: %s", raw)
			}
			config.PostgresMaxConns = int32(maxConns)
		}
		return nil

	default:
		return fmt.Errorf("invalid STORAGE_DRIVER: %s (expected mock, clickhouse or postgres)", config.StorageDriver)
	}
}

// getEnv retrieves environment variable or returns default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
