package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	Auth      AuthConfig
	Audit     AuditConfig
	Retention RetentionConfig
}

// ServerConfig HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// LoggingConfig logging configuration
type LoggingConfig struct {
	Level      string
	Format     string // "json" or "console"
	OutputPath string
}

// MetricsConfig metrics configuration
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// AuthConfig JWT configuration
type AuthConfig struct {
	JWTSecret     string
	TokenDuration time.Duration
}

// AuditConfig write-path audit configuration. RetentionDays here is the
// informational default for how long records should live; actual cleanup
// timing lives in RetentionConfig so the two can evolve independently.
type AuditConfig struct {
	Enabled         bool
	RetentionDays   int
	BatchSize       int
	AsyncProcessing bool
}

// RetentionConfig scheduled audit cleanup configuration
type RetentionConfig struct {
	Enabled       bool
	Days          int
	CleanSchedule string
}

// Bounds for audit configuration values. Out-of-range values abort startup;
// they are never clamped silently.
const (
	MinRetentionDays = 1
	MaxRetentionDays = 36500
	MinBatchSize     = 1
	MaxBatchSize     = 10000
)

// LoadConfig loads and validates configuration (Fx compatible)
func LoadConfig() (*Config, error) {
	return Load()
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "rabbitdeck"),
			Password:        getEnv("DB_PASSWORD", "rabbitdeck_dev_password"),
			DBName:          getEnv("DB_NAME", "rabbitdeck"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			OutputPath: getEnv("LOG_OUTPUT", "stdout"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
			Port:    getEnvAsInt("METRICS_PORT", 9090),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", "rabbitdeck_dev_secret"),
			TokenDuration: getEnvAsDuration("JWT_TOKEN_DURATION", 12*time.Hour),
		},
		Audit: AuditConfig{
			Enabled:         getEnvAsBool("AUDIT_ENABLED", false),
			RetentionDays:   getEnvAsInt("AUDIT_RETENTION_DAYS", 90),
			BatchSize:       getEnvAsInt("AUDIT_BATCH_SIZE", 100),
			AsyncProcessing: getEnvAsBool("AUDIT_ASYNC_PROCESSING", true),
		},
		Retention: RetentionConfig{
			Enabled:       getEnvAsBool("AUDIT_CLEAN_ENABLED", false),
			Days:          getEnvAsInt("AUDIT_CLEAN_DAYS", 90),
			CleanSchedule: getEnv("AUDIT_CLEAN_SCHEDULE", "0 3 * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configured values against their documented bounds. Errors
// name the offending property, its value and the valid range; any error is
// fatal at startup.
func (c *Config) Validate() error {
	if err := c.Audit.Validate(); err != nil {
		return err
	}
	return c.Retention.Validate()
}

// Validate checks the write-path audit bounds.
func (c *AuditConfig) Validate() error {
	if c.RetentionDays < MinRetentionDays {
		return fmt.Errorf("audit.retentionDays must be at least %d, got %d", MinRetentionDays, c.RetentionDays)
	}
	if c.RetentionDays > MaxRetentionDays {
		return fmt.Errorf("audit.retentionDays cannot exceed %d, got %d", MaxRetentionDays, c.RetentionDays)
	}
	if c.BatchSize < MinBatchSize {
		return fmt.Errorf("audit.batchSize must be at least %d, got %d", MinBatchSize, c.BatchSize)
	}
	if c.BatchSize > MaxBatchSize {
		return fmt.Errorf("audit.batchSize cannot exceed %d, got %d", MaxBatchSize, c.BatchSize)
	}
	return nil
}

// Validate checks the retention sweep bounds.
func (c *RetentionConfig) Validate() error {
	if c.Days < MinRetentionDays {
		return fmt.Errorf("retention.days must be at least %d, got %d", MinRetentionDays, c.Days)
	}
	if c.Days > MaxRetentionDays {
		return fmt.Errorf("retention.days cannot exceed %d, got %d", MaxRetentionDays, c.Days)
	}
	if c.Enabled && c.CleanSchedule == "" {
		return fmt.Errorf("retention.cleanSchedule must be set when retention cleanup is enabled")
	}
	return nil
}

// DSN builds the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Addr builds the redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// helpers
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
