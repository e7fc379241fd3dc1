package config

import (
	"os"
	"strconv"
)

// Config holds all configuration for the application
type Config struct {
	// Server
	Port  int
	Debug bool

	// Database. When DatabaseURL is set the daemon runs against Postgres;
	// otherwise it uses the local SQLite file.
	DatabaseURL string
	SQLitePath  string

	// RabbitMQ. Empty disables the outbound lifecycle feed.
	RabbitMQURL string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 7432),
		Debug:       getEnvBool("DEBUG", false),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("TETHER_DB_PATH", ""),
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
