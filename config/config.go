package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"tradeDesk/internal/adapters/logger" // Import the logger package for LogLevel
	"tradeDesk/internal/ports"
)

// Catalog sources for instrument resolution.
const (
	CatalogSQLite  = "sqlite"
	CatalogBinance = "binance"
)

// Config holds all application configuration.
type Config struct {
	// Database
	DBPath       string
	MaxOpenConns int

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string          // text, json or console

	// Execution
	LockTimeout        time.Duration // How long a request waits for an account lock
	MaxConflictRetries int           // Retries after a lock or version conflict
	RetryMinDelay      time.Duration
	RetryMaxDelay      time.Duration

	// Instrument catalog
	CatalogSource  string
	CatalogRefresh time.Duration

	// Binance API (catalog source "binance" only)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Risk limits; zero disables a limit
	RiskMaxOrderValue       decimal.Decimal
	RiskMaxPositionQuantity int64
	RiskMaxDailyTrades      int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/trade_desk.db")
	cfg.MaxOpenConns, err = getEnvAsIntRequired("DB_MAX_OPEN_CONNS", 1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DB_MAX_OPEN_CONNS: %v", err))
	} else if cfg.MaxOpenConns <= 0 {
		errs = append(errs, "DB_MAX_OPEN_CONNS must be positive")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	switch cfg.LogFormat {
	case "text", "json", "console":
	default:
		errs = append(errs, "LOG_FORMAT must be one of text, json, console")
	}

	// Execution
	lockTimeoutMs, err := getEnvAsIntRequired("LOCK_TIMEOUT_MS", 2000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LOCK_TIMEOUT_MS: %v", err))
	} else if lockTimeoutMs <= 0 {
		errs = append(errs, "LOCK_TIMEOUT_MS must be positive")
	}
	cfg.LockTimeout = time.Duration(lockTimeoutMs) * time.Millisecond

	cfg.MaxConflictRetries, err = getEnvAsIntRequired("MAX_CONFLICT_RETRIES", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_CONFLICT_RETRIES: %v", err))
	} else if cfg.MaxConflictRetries < 0 {
		errs = append(errs, "MAX_CONFLICT_RETRIES cannot be negative")
	}

	cfg.RetryMinDelay = time.Duration(getEnvAsInt("RETRY_MIN_DELAY_MS", 10)) * time.Millisecond
	cfg.RetryMaxDelay = time.Duration(getEnvAsInt("RETRY_MAX_DELAY_MS", 500)) * time.Millisecond
	if cfg.RetryMinDelay <= 0 || cfg.RetryMaxDelay < cfg.RetryMinDelay {
		errs = append(errs, "RETRY_MIN_DELAY_MS must be positive and not exceed RETRY_MAX_DELAY_MS")
	}

	// Instrument catalog
	cfg.CatalogSource = strings.ToLower(getEnv("CATALOG_SOURCE", CatalogSQLite))
	cfg.CatalogRefresh = time.Duration(getEnvAsInt("CATALOG_REFRESH_SECONDS", 300)) * time.Second
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
	switch cfg.CatalogSource {
	case CatalogSQLite:
	case CatalogBinance:
		if cfg.CatalogRefresh <= 0 {
			errs = append(errs, "CATALOG_REFRESH_SECONDS must be positive")
		}
	default:
		errs = append(errs, "CATALOG_SOURCE must be sqlite or binance")
	}

	// Risk limits
	cfg.RiskMaxOrderValue, err = getEnvAsDecimalRequired("RISK_MAX_ORDER_VALUE", decimal.Zero)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_MAX_ORDER_VALUE: %v", err))
	} else if cfg.RiskMaxOrderValue.IsNegative() {
		errs = append(errs, "RISK_MAX_ORDER_VALUE cannot be negative")
	}

	maxQty, err := getEnvAsIntRequired("RISK_MAX_POSITION_QTY", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_MAX_POSITION_QTY: %v", err))
	} else if maxQty < 0 {
		errs = append(errs, "RISK_MAX_POSITION_QTY cannot be negative")
	}
	cfg.RiskMaxPositionQuantity = int64(maxQty)

	cfg.RiskMaxDailyTrades, err = getEnvAsIntRequired("RISK_MAX_DAILY_TRADES", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_MAX_DAILY_TRADES: %v", err))
	} else if cfg.RiskMaxDailyTrades < 0 {
		errs = append(errs, "RISK_MAX_DAILY_TRADES cannot be negative")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}

	return cfg, nil
}

// Default returns the configuration used when no environment is set.
func Default() *Config {
	return &Config{
		DBPath:             "./data/trade_desk.db",
		MaxOpenConns:       1,
		LogLevel:           logger.LevelInfo,
		LogFormat:          "text",
		LockTimeout:        2 * time.Second,
		MaxConflictRetries: 3,
		RetryMinDelay:      10 * time.Millisecond,
		RetryMaxDelay:      500 * time.Millisecond,
		CatalogSource:      CatalogSQLite,
		CatalogRefresh:     5 * time.Minute,
		IsTestnet:          true,
	}
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsDecimalRequired(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
