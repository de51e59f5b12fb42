// Package config loads daemon settings from the environment and the optional
// protocol parameters from a TOML file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Env holds settings read from environment variables.
// Command-line flags take precedence over these values.
type Env struct {
	HTTPAddr      string `env:"LEDGER_HTTP_ADDR" envDefault:":8080"`
	Storage       string `env:"LEDGER_STORAGE" envDefault:"memory"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"ledger.db"`
	PostgresDSN   string `env:"POSTGRES_DSN"`
	ClickhouseDSN string `env:"CLICKHOUSE_DSN"`
	ProtocolFile  string `env:"LEDGER_PROTOCOL_FILE"`
	AutoMigrate   bool   `env:"LEDGER_AUTO_MIGRATE" envDefault:"true"`
	APIToken      string `env:"LEDGER_API_TOKEN"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	MetricsNamespace string  `env:"METRICS_NAMESPACE" envDefault:"jetton_ledger"`
	OTelEndpoint     string  `env:"OTEL_ENDPOINT"`
	OTelSampleRatio  float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"1"`

	AddressCacheSize    int           `env:"ADDRESS_CACHE_SIZE" envDefault:"4096"`
	SupplyCheckInterval time.Duration `env:"SUPPLY_CHECK_INTERVAL" envDefault:"1m"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// ParseEnv loads Env from environment variables.
func ParseEnv() (Env, error) {
	var cfg Env
	if err := env.Parse(&cfg); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the storage selection and its connection settings.
func (e Env) Validate() error {
	switch e.Storage {
	case StorageMemory:
	case StorageSQLite:
		if strings.TrimSpace(e.SQLitePath) == "" {
			return fmt.Errorf("sqlite storage requires SQLITE_PATH")
		}
	case StoragePostgres:
		if e.PostgresDSN == "" {
			return fmt.Errorf("postgres storage requires POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unknown storage %q (want memory, sqlite or postgres)", e.Storage)
	}
	if e.OTelSampleRatio < 0 || e.OTelSampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATIO must be within [0, 1]")
	}
	return nil
}

// LoadEnvFile sets variables from a KEY=VALUE file such as .env.
// A missing file is not an error; variables already set are kept.
func LoadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read env file: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if _, set := os.LookupEnv(key); !set {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("set %s: %w", key, err)
			}
		}
	}
	return nil
}
