package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	Scraper    ScraperConfig    `json:"scraper"`
	Telegram   TelegramConfig   `json:"telegram"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Resilience ResilienceConfig `json:"resilience"`
	Logging    LoggingConfig    `json:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// ScraperConfig contains board scraping configuration
type ScraperConfig struct {
	BaseURL        string        `json:"base_url"`
	RequestTimeout time.Duration `json:"request_timeout"`
	UserAgent      string        `json:"user_agent"`
}

// TelegramConfig contains Telegram delivery configuration
type TelegramConfig struct {
	APIBaseURL      string        `json:"api_base_url"`
	TokenEnvVar     string        `json:"token_env_var"`
	TokenFile       string        `json:"token_file"`
	RequestTimeout  time.Duration `json:"request_timeout"`
	MessagePacing   time.Duration `json:"message_pacing"`
	DedupeTTL       time.Duration `json:"dedupe_ttl"`
}

// SchedulerConfig contains job scheduling configuration
type SchedulerConfig struct {
	TickInterval  time.Duration `json:"tick_interval"`
	MaxConcurrent int           `json:"max_concurrent"`
	JobTimeout    time.Duration `json:"job_timeout"`
}

// ResilienceConfig contains circuit breaker and retry configuration
type ResilienceConfig struct {
	FailureThreshold  int           `json:"failure_threshold"`
	RollingPeriod     time.Duration `json:"rolling_period"`
	CoolDown          time.Duration `json:"cool_down"`
	HalfOpenMaxTrials int           `json:"half_open_max_trials"`
	MaxAttempts       int           `json:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	MetricCapacity    int           `json:"metric_capacity"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "boardwatch"),
			User:            getEnvString("DB_USER", "boardwatch"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Scraper: ScraperConfig{
			BaseURL:        getEnvString("SCRAPER_BASE_URL", "https://www.ptt.cc"),
			RequestTimeout: getEnvDuration("SCRAPER_REQUEST_TIMEOUT", 30*time.Second),
			UserAgent:      getEnvString("SCRAPER_USER_AGENT", "boardwatch/1.0"),
		},
		Telegram: TelegramConfig{
			APIBaseURL:     getEnvString("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
			TokenEnvVar:    getEnvString("TELEGRAM_TOKEN_ENV_VAR", "TELEGRAM_BOT_TOKEN"),
			TokenFile:      getEnvString("TELEGRAM_TOKEN_FILE", ""),
			RequestTimeout: getEnvDuration("TELEGRAM_REQUEST_TIMEOUT", 30*time.Second),
			MessagePacing:  getEnvDuration("TELEGRAM_MESSAGE_PACING", time.Second),
			DedupeTTL:      getEnvDuration("TELEGRAM_DEDUPE_TTL", 72*time.Hour),
		},
		Scheduler: SchedulerConfig{
			TickInterval:  getEnvDuration("SCHEDULER_TICK_INTERVAL", time.Minute),
			MaxConcurrent: getEnvInt("SCHEDULER_MAX_CONCURRENT", 4),
			JobTimeout:    getEnvDuration("SCHEDULER_JOB_TIMEOUT", 5*time.Minute),
		},
		Resilience: ResilienceConfig{
			FailureThreshold:  getEnvInt("RESILIENCE_FAILURE_THRESHOLD", 5),
			RollingPeriod:     getEnvDuration("RESILIENCE_ROLLING_PERIOD", time.Minute),
			CoolDown:          getEnvDuration("RESILIENCE_COOL_DOWN", 30*time.Second),
			HalfOpenMaxTrials: getEnvInt("RESILIENCE_HALF_OPEN_MAX_TRIALS", 1),
			MaxAttempts:       getEnvInt("RESILIENCE_MAX_ATTEMPTS", 3),
			InitialDelay:      getEnvDuration("RESILIENCE_INITIAL_DELAY", time.Second),
			MaxDelay:          getEnvDuration("RESILIENCE_MAX_DELAY", 10*time.Second),
			MetricCapacity:    getEnvInt("RESILIENCE_METRIC_CAPACITY", 1000),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stdout"),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Scheduler.MaxConcurrent <= 0 {
		return fmt.Errorf("scheduler max concurrent must be positive")
	}

	if c.Resilience.FailureThreshold <= 0 {
		return fmt.Errorf("resilience failure threshold must be positive")
	}

	if c.Resilience.MaxAttempts <= 0 {
		return fmt.Errorf("resilience max attempts must be positive")
	}

	if c.Telegram.TokenEnvVar == "" && c.Telegram.TokenFile == "" {
		return fmt.Errorf("a Telegram token source (env var or file) is required")
	}

	return nil
}

// DatabaseURL returns the database connection URL
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// RedisURL returns the Redis connection URL
func (c *Config) RedisURL() string {
	if c.Redis.Password != "" {
		return fmt.Sprintf("redis://:%s@%s:%d/%d",
			c.Redis.Password,
			c.Redis.Host,
			c.Redis.Port,
			c.Redis.DB,
		)
	}
	return fmt.Sprintf("redis://%s:%d/%d",
		c.Redis.Host,
		c.Redis.Port,
		c.Redis.DB,
	)
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
