// Package config provides configuration management for the proof-of-reserve generator.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Chain    ChainConfig
	Output   OutputConfig
	Audit    AuditConfig
	Schedule ScheduleConfig
	Logging  LoggingConfig
}

// ServerConfig holds the HTTP server configuration used in schedule mode
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds the asset/holdings store configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
	QueryTimeout   time.Duration
	QueryAttempts  int
}

// ClickHouseConfig holds the reserve history sink configuration.
// An empty Host disables the sink.
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// Enabled reports whether the reserve history sink is configured
func (c ClickHouseConfig) Enabled() bool {
	return c.Host != ""
}

// RedisConfig holds the run lock configuration.
// An empty Host disables the lock.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// Enabled reports whether the run lock is configured
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// ChainConfig holds blockchain RPC configuration
type ChainConfig struct {
	RPCPrimary       string
	RPCSecondary     string
	NetworkID        int64
	PlatformWallet   string
	TokenStandards   []string
	CallTimeout      time.Duration
	Concurrency      int
	RateLimit        float64 // calls per second, 0 disables
	RateBurst        int
	BreakerThreshold int // consecutive failures before the breaker opens
}

// SupportsStandard reports whether contract verification applies to the token standard
func (c ChainConfig) SupportsStandard(standard string) bool {
	for _, s := range c.TokenStandards {
		if strings.EqualFold(s, standard) {
			return true
		}
	}
	return false
}

// OutputConfig holds artifact output configuration
type OutputConfig struct {
	Directory string
	Platform  string
}

// AuditConfig holds the audit annotation embedded in every report
type AuditConfig struct {
	Auditor         string
	Methodology     string
	ConfidenceLevel float64
	IntervalDays    int
}

// ScheduleConfig holds the cron schedule used by `por schedule`
type ScheduleConfig struct {
	Cron string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string
	Format    string
	SentryDSN string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("DB_HOST", "localhost"),
				Port:           getEnv("DB_PORT", "5432"),
				Database:       getEnv("DB_NAME", "aimy"),
				User:           getEnv("DB_USER", "aimy_user"),
				Password:       getEnv("DB_PASSWORD", "aimy_password"),
				MaxConnections: getEnvAsInt("DB_MAX_CONNECTIONS", 10),
				QueryTimeout:   getEnvAsDuration("DB_QUERY_TIMEOUT", 30*time.Second),
				QueryAttempts:  getEnvAsInt("DB_QUERY_ATTEMPTS", 3),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", ""),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "reserve_history"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:     getEnv("REDIS_HOST", ""),
				Port:     getEnv("REDIS_PORT", "6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvAsInt("REDIS_DB", 0),
				LockTTL:  getEnvAsDuration("RUN_LOCK_TTL", 15*time.Minute),
			},
		},
		Chain: ChainConfig{
			RPCPrimary:       getEnv("ETHEREUM_RPC_URL", "http://localhost:8545"),
			RPCSecondary:     getEnv("ETHEREUM_RPC_URL_SECONDARY", ""),
			NetworkID:        int64(getEnvAsInt("NETWORK_ID", 1337)),
			PlatformWallet:   getEnv("PLATFORM_WALLET_ADDRESS", ""),
			TokenStandards:   getEnvAsList("SUPPORTED_TOKEN_STANDARDS", []string{"ERC-3643"}),
			CallTimeout:      getEnvAsDuration("RPC_CALL_TIMEOUT", 10*time.Second),
			Concurrency:      getEnvAsInt("RPC_CONCURRENCY", 8),
			RateLimit:        getEnvAsFloat("RPC_RATE_LIMIT", 25),
			RateBurst:        getEnvAsInt("RPC_RATE_BURST", 10),
			BreakerThreshold: getEnvAsInt("RPC_BREAKER_THRESHOLD", 5),
		},
		Output: OutputConfig{
			Directory: getEnv("REPORTS_DIR", "./reports"),
			Platform:  getEnv("PLATFORM_NAME", "AIMY"),
		},
		Audit: AuditConfig{
			Auditor:         getEnv("AUDITOR", "AIMY System"),
			Methodology:     "blockchain_verification",
			ConfidenceLevel: getEnvAsFloat("AUDIT_CONFIDENCE_LEVEL", 0.99),
			IntervalDays:    getEnvAsInt("AUDIT_INTERVAL_DAYS", 30),
		},
		Schedule: ScheduleConfig{
			Cron: getEnv("POR_SCHEDULE", "0 0 * * *"),
		},
		Logging: LoggingConfig{
			Level:     getEnv("LOG_LEVEL", "info"),
			Format:    getEnv("LOG_FORMAT", "json"),
			SentryDSN: getEnv("SENTRY_DSN", ""),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks values that would make a run meaningless
func (c *Config) Validate() error {
	if c.Chain.RPCPrimary == "" {
		return fmt.Errorf("ETHEREUM_RPC_URL must not be empty")
	}
	if c.Chain.Concurrency <= 0 {
		return fmt.Errorf("RPC_CONCURRENCY must be positive, got %d", c.Chain.Concurrency)
	}
	if c.Chain.CallTimeout <= 0 {
		return fmt.Errorf("RPC_CALL_TIMEOUT must be positive, got %s", c.Chain.CallTimeout)
	}
	if c.Audit.ConfidenceLevel <= 0 || c.Audit.ConfidenceLevel > 1 {
		return fmt.Errorf("AUDIT_CONFIDENCE_LEVEL must be in (0, 1], got %v", c.Audit.ConfidenceLevel)
	}
	if c.Output.Directory == "" {
		return fmt.Errorf("REPORTS_DIR must not be empty")
	}
	if c.Database.Postgres.QueryAttempts <= 0 {
		return fmt.Errorf("DB_QUERY_ATTEMPTS must be positive, got %d", c.Database.Postgres.QueryAttempts)
	}
	return nil
}

// PostgresURL returns the store connection URL used by migrations
func (c *Config) PostgresURL() string {
	pg := c.Database.Postgres
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		pg.User, pg.Password, pg.Host, pg.Port, pg.Database)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList gets a comma separated environment variable with a default value
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
