package common

import (
	"os"
	"strconv"
	"time"

	"resume-insights/constants"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Broker   BrokerConfig
	Worker   WorkerConfig
	LLM      LLMConfig
	Uploads  UploadsConfig
}

// DatabaseConfig holds job-store configuration. Driver selects the engine:
// "sqlite" (default) or "postgres".
type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr string
}

// BrokerConfig selects and tunes the task broker: "memory" or "redis".
type BrokerConfig struct {
	Kind              string
	RedisURL          string
	VisibilityTimeout time.Duration
}

// WorkerConfig tunes the orchestrator pool and retry policy.
type WorkerConfig struct {
	Workers        int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	StageTimeout   time.Duration
}

// LLMConfig holds enrichment-model configuration.
type LLMConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	Timeout     time.Duration
}

// UploadsConfig holds upload handling configuration.
type UploadsConfig struct {
	Dir      string
	MaxBytes int64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			DSN:             getEnv("DB_URL", "resume-insights.db"),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Broker: BrokerConfig{
			Kind:              getEnv("BROKER", "memory"),
			RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
			VisibilityTimeout: getEnvAsDuration("VISIBILITY_TIMEOUT", 30*time.Second),
		},
		Worker: WorkerConfig{
			Workers:        getEnvAsInt("WORKERS", 6),
			MaxAttempts:    getEnvAsInt("MAX_ATTEMPTS", 3),
			RetryBaseDelay: getEnvAsDuration("RETRY_BASE_DELAY", 2*time.Second),
			RetryMaxDelay:  getEnvAsDuration("RETRY_MAX_DELAY", time.Minute),
			StageTimeout:   getEnvAsDuration("STAGE_TIMEOUT", 90*time.Second),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		Uploads: UploadsConfig{
			Dir:      getEnv("UPLOADS_DIR", "./uploads"),
			MaxBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", constants.MaxUploadBytes),
		},
	}
}

// Helper functions for environment variable parsing
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

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
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

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return NewAppError("CONFIG_ERROR", "DB_DRIVER must be sqlite or postgres", ErrInvalidInput)
	}
	if c.Broker.Kind != "memory" && c.Broker.Kind != "redis" {
		return NewAppError("CONFIG_ERROR", "BROKER must be memory or redis", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Worker.MaxAttempts < 1 {
		return NewAppError("CONFIG_ERROR", "MAX_ATTEMPTS must be at least 1", ErrInvalidInput)
	}
	return nil
}
