package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Port         string
	NotifierPort string
	Storage      string

	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string
	DatabaseURL string

	KafkaBrokers string
	KafkaGroupID string

	LogLevel           logrus.Level
	BreakerMaxFailures int
	BreakerTimeout     time.Duration
	ShutdownTimeout    time.Duration
}

// Load reads the environment, after merging a .env file if one exists.
// Variables already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8000"),
		NotifierPort: getEnv("NOTIFIER_PORT", "8082"),
		Storage:      strings.ToLower(getEnv("OFFER_STORAGE", StoragePostgres)),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBUser:       getEnv("DB_USER", "configurator"),
		DBPassword:   getEnv("DB_PASSWORD", "configurator"),
		DBName:       os.Getenv("DB_NAME"),
		DBSSLMode:    getEnv("DB_SSLMODE", "disable"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "offer-notifier"),
	}

	if cfg.Storage != StoragePostgres && cfg.Storage != StorageMemory {
		return nil, fmt.Errorf("invalid OFFER_STORAGE %q: want %s or %s", cfg.Storage, StoragePostgres, StorageMemory)
	}

	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	if cfg.BreakerMaxFailures, err = getInt("BREAKER_MAX_FAILURES", 5); err != nil {
		return nil, err
	}
	if cfg.BreakerTimeout, err = getDuration("BREAKER_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DSN returns DATABASE_URL when set, otherwise a key/value DSN built from the
// DB_* variables. DB_NAME defaults to "configurator" here only.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	name := c.DBName
	if name == "" {
		name = "configurator"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, name, c.DBSSLMode)
}

func (c *Config) KafkaEnabled() bool {
	return strings.TrimSpace(c.KafkaBrokers) != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
