package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

var keys = []string{
	"PORT", "NOTIFIER_PORT", "OFFER_STORAGE", "DB_HOST", "DB_PORT", "DB_USER",
	"DB_PASSWORD", "DB_NAME", "DB_SSLMODE", "DATABASE_URL", "KAFKA_BROKERS",
	"KAFKA_GROUP_ID", "LOG_LEVEL", "BREAKER_MAX_FAILURES", "BREAKER_TIMEOUT",
	"SHUTDOWN_TIMEOUT",
}

// clearEnv blanks every key for the test; godotenv skips keys that are
// already present, so they must be unset rather than empty for file tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func missingFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(missingFile(t))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("Expected port 8000, got %s", cfg.Port)
	}
	if cfg.Storage != StoragePostgres {
		t.Errorf("Expected postgres storage, got %s", cfg.Storage)
	}
	if cfg.LogLevel != logrus.InfoLevel {
		t.Errorf("Expected info level, got %s", cfg.LogLevel)
	}
	if cfg.BreakerMaxFailures != 5 || cfg.BreakerTimeout != 30*time.Second {
		t.Errorf("Unexpected breaker defaults: %d %s", cfg.BreakerMaxFailures, cfg.BreakerTimeout)
	}
	if cfg.KafkaEnabled() {
		t.Error("Expected Kafka to be disabled without brokers")
	}
	want := "host=localhost port=5432 user=configurator password=configurator dbname=configurator sslmode=disable"
	if cfg.DSN() != want {
		t.Errorf("Expected DSN %q, got %q", want, cfg.DSN())
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("OFFER_STORAGE", "Memory")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/offers")
	t.Setenv("KAFKA_BROKERS", "kafka:9092")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BREAKER_TIMEOUT", "5s")

	cfg, err := Load(missingFile(t))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9000" {
		t.Errorf("Expected port 9000, got %s", cfg.Port)
	}
	if cfg.Storage != StorageMemory {
		t.Errorf("Expected memory storage, got %s", cfg.Storage)
	}
	if cfg.DSN() != "postgres://u:p@db/offers" {
		t.Errorf("Expected DATABASE_URL to win, got %s", cfg.DSN())
	}
	if !cfg.KafkaEnabled() {
		t.Error("Expected Kafka to be enabled")
	}
	if cfg.LogLevel != logrus.DebugLevel {
		t.Errorf("Expected debug level, got %s", cfg.LogLevel)
	}
	if cfg.BreakerTimeout != 5*time.Second {
		t.Errorf("Expected 5s breaker timeout, got %s", cfg.BreakerTimeout)
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PORT=7000\nDB_NAME=offers\n"), 0o600); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("PORT")
		os.Unsetenv("DB_NAME")
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "7000" {
		t.Errorf("Expected port from file, got %s", cfg.Port)
	}
	if cfg.DBName != "offers" {
		t.Errorf("Expected DB name from file, got %s", cfg.DBName)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("OFFER_STORAGE", "mongo")
	if _, err := Load(missingFile(t)); err == nil {
		t.Error("Expected error for unknown storage")
	}

	clearEnv(t)
	t.Setenv("BREAKER_MAX_FAILURES", "many")
	if _, err := Load(missingFile(t)); err == nil {
		t.Error("Expected error for non-numeric max failures")
	}

	clearEnv(t)
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")
	if _, err := Load(missingFile(t)); err == nil {
		t.Error("Expected error for invalid duration")
	}
}
