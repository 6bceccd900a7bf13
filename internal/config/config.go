package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	AdminDB    DatabaseConfig
	CoreDB     DatabaseConfig
	WorkflowDB DatabaseConfig
	RabbitMQ   RabbitMQConfig
	AssetGen   AssetGenConfig
	Dispatch   DispatchConfig
	Batch      BatchConfig
	Env        string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds PostgreSQL configuration for one database
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// RabbitMQConfig holds RabbitMQ configuration
type RabbitMQConfig struct {
	Host     string
	Port     string
	User     string
	Password string
}

// AssetGenConfig holds the asset-generation worker client configuration
type AssetGenConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	PollInterval   time.Duration
}

// DispatchConfig holds email dispatch configuration
type DispatchConfig struct {
	Timeout     time.Duration
	SuccessRate float64
}

// BatchConfig holds batch execution configuration
type BatchConfig struct {
	Size            int
	SampleAddresses []string
}

// Load reads configuration from environment variables. Three databases:
// the admin DB owns campaign state, the core DB holds registered authors,
// the workflow DB holds marketing leads.
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		AdminDB:    loadDatabase("ADMIN_DB", "storyadmin"),
		CoreDB:     loadDatabase("CORE_DB", "storycore"),
		WorkflowDB: loadDatabase("WORKFLOW_DB", "storyworkflow"),
		RabbitMQ: RabbitMQConfig{
			Host:     getEnv("RABBITMQ_HOST", "localhost"),
			Port:     getEnv("RABBITMQ_PORT", "5672"),
			User:     getEnv("RABBITMQ_DEFAULT_USER", "guest"),
			Password: getEnv("RABBITMQ_DEFAULT_PASS", "guest"),
		},
		AssetGen: AssetGenConfig{
			BaseURL:        getEnv("ASSETGEN_BASE_URL", "http://localhost:9090"),
			RequestTimeout: getEnvAsDuration("ASSETGEN_REQUEST_TIMEOUT", 15*time.Second),
			PollInterval:   getEnvAsDuration("ASSETGEN_POLL_INTERVAL", 2*time.Second),
		},
		Dispatch: DispatchConfig{
			Timeout:     getEnvAsDuration("DISPATCH_TIMEOUT", 10*time.Second),
			SuccessRate: getEnvAsFloat("DISPATCH_SUCCESS_RATE", 0.95),
		},
		Batch: BatchConfig{
			Size:            getEnvAsInt("BATCH_SIZE", 500),
			SampleAddresses: getEnvAsList("SAMPLE_ADDRESSES"),
		},
		Env: getEnv("ENV", "development"),
	}

	if config.AdminDB.Password == "" {
		return nil, fmt.Errorf("ADMIN_DB_PASSWORD is required")
	}
	if config.CoreDB.Password == "" {
		return nil, fmt.Errorf("CORE_DB_PASSWORD is required")
	}
	if config.WorkflowDB.Password == "" {
		return nil, fmt.Errorf("WORKFLOW_DB_PASSWORD is required")
	}

	return config, nil
}

func loadDatabase(prefix, defaultName string) DatabaseConfig {
	return DatabaseConfig{
		Host:     getEnv(prefix+"_HOST", "localhost"),
		Port:     getEnv(prefix+"_PORT", "5432"),
		User:     getEnv(prefix+"_USER", defaultName),
		Password: getEnv(prefix+"_PASSWORD", ""),
		DBName:   getEnv(prefix+"_NAME", defaultName),
	}
}

// DSN returns the PostgreSQL connection string for this database
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.DBName,
	)
}

// GetRabbitMQURL returns RabbitMQ connection URL
func (c *Config) GetRabbitMQURL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		c.RabbitMQ.User,
		c.RabbitMQ.Password,
		c.RabbitMQ.Host,
		c.RabbitMQ.Port,
	)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// getEnv gets environment variable or returns default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets environment variable as integer or returns default
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList parses a comma-separated environment variable.
func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			list = append(list, trimmed)
		}
	}
	return list
}
