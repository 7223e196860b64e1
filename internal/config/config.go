// Package config loads swapd configuration from defaults, an optional
// config file, a .env file and SAISWAP_ environment variables, in
// increasing priority. Command-line flags bound with BindFlags win over all.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"sai-swap/internal/domain"
)

// EnvPrefix prefixes every environment variable, e.g. SAISWAP_STORAGE_DRIVER.
const EnvPrefix = "SAISWAP"

// DefaultProgramID is the program identity vault addresses are derived under.
const DefaultProgramID = "Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config is the complete daemon configuration.
type Config struct {
	Listen          string        `mapstructure:"listen"`
	ProgramID       string        `mapstructure:"program_id"`
	DevMode         bool          `mapstructure:"dev_mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Stream  StreamConfig  `mapstructure:"stream"`
}

// StorageConfig selects the ledger and journal backends.
type StorageConfig struct {
	Driver        string `mapstructure:"driver"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"` // empty keeps the journal in memory
	Migrate       bool   `mapstructure:"migrate"`       // apply migrations on startup

	PostgresMaxConns       int32         `mapstructure:"postgres_max_conns"`
	PostgresConnectTimeout time.Duration `mapstructure:"postgres_connect_timeout"`
}

// LogConfig configures internal/logging.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// StreamConfig configures the websocket event stream.
type StreamConfig struct {
	BufferSize   int           `mapstructure:"buffer_size"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("program_id", DefaultProgramID)
	v.SetDefault("dev_mode", false)
	v.SetDefault("shutdown_timeout", 30*time.Second)

	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")
	v.SetDefault("storage.migrate", false)
	v.SetDefault("storage.postgres_max_conns", 10)
	v.SetDefault("storage.postgres_connect_timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("metrics.namespace", "sai_swap")

	v.SetDefault("stream.buffer_size", 64)
	v.SetDefault("stream.write_timeout", 10*time.Second)
	v.SetDefault("stream.ping_interval", 30*time.Second)
}

// Load reads configuration. path may be empty; a missing .env file is ignored.
func Load(path string) (*Config, error) {
	return LoadWithFlags(path, nil)
}

// LoadWithFlags is Load with flag overrides. Flag names use dots for nesting,
// e.g. --storage.driver.
func LoadWithFlags(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	loadEnvFile(".env")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	if _, err := domain.ParsePublicKey(c.ProgramID); err != nil {
		errs = append(errs, fmt.Errorf("program_id: %w", err))
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}

	if c.Listen == "" {
		errs = append(errs, errors.New("listen: address is required"))
	}
	if c.Stream.BufferSize <= 0 {
		errs = append(errs, errors.New("stream.buffer_size must be positive"))
	}

	return errors.Join(errs...)
}

// Program returns the parsed program identity.
func (c *Config) Program() domain.PublicKey {
	return domain.MustPublicKey(c.ProgramID)
}

// loadEnvFile loads KEY=VALUE pairs into the environment without
// overriding variables that are already set.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if _, ok := os.LookupEnv(key); !ok {
			os.Setenv(key, value)
		}
	}
}
