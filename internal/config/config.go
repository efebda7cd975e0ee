package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Store         StoreConfig         `mapstructure:"store"`
	Remote        RemoteConfig        `mapstructure:"remote"`
	Sync          SyncConfig          `mapstructure:"sync"`
	Catalog       CatalogConfig       `mapstructure:"catalog"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	TerminalID    string              `mapstructure:"terminal_id"`
}

// ServerConfig configures the localhost control API.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// StoreConfig configures the local SQLite database.
type StoreConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// RemoteConfig configures the remote POS backend endpoints.
type RemoteConfig struct {
	BaseURL                 string        `mapstructure:"base_url"`
	RequestTimeout          time.Duration `mapstructure:"request_timeout"`
	HealthPath              string        `mapstructure:"health_path"`
	CircuitBreakerThreshold uint32        `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
}

// SyncConfig configures the transaction sync engine. MaxRetries and
// PollInterval were hard-coded in earlier iterations; they are configuration
// now so terminals on flaky links can be tuned in the field.
type SyncConfig struct {
	MaxRetries    int           `mapstructure:"max_retries"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

// CatalogConfig configures catalog mirroring.
type CatalogConfig struct {
	ImageConcurrency int           `mapstructure:"image_concurrency"`
	ImageDir         string        `mapstructure:"image_dir"`
	FetchRetries     uint          `mapstructure:"fetch_retries"`
	FetchRetryDelay  time.Duration `mapstructure:"fetch_retry_delay"`
}

type ObservabilityConfig struct {
	LogLevel      string `mapstructure:"log_level"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("POSSYNC")
	v.AutomaticEnv()

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/possync")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Store.Path == "" {
		errs = append(errs, fmt.Errorf("store.path is required"))
	}
	if c.Remote.BaseURL == "" {
		errs = append(errs, fmt.Errorf("remote.base_url is required"))
	}
	if c.Remote.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("remote.request_timeout must be positive"))
	}
	if c.Sync.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("sync.max_retries must be positive"))
	}
	if c.Sync.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("sync.poll_interval must be positive"))
	}
	if c.Sync.ProbeInterval <= 0 {
		errs = append(errs, fmt.Errorf("sync.probe_interval must be positive"))
	}
	if c.Catalog.ImageConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("catalog.image_concurrency must be positive"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 7373)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Store defaults
	v.SetDefault("store.path", "./data/possync.db")
	v.SetDefault("store.busy_timeout", "5s")

	// Remote defaults
	v.SetDefault("remote.base_url", "http://localhost:3000")
	v.SetDefault("remote.request_timeout", "15s")
	v.SetDefault("remote.health_path", "/api/health")
	v.SetDefault("remote.circuit_breaker_threshold", 5)
	v.SetDefault("remote.circuit_breaker_timeout", "30s")

	// Sync defaults
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.poll_interval", "5s")
	v.SetDefault("sync.probe_interval", "10s")

	// Catalog defaults
	v.SetDefault("catalog.image_concurrency", 5)
	v.SetDefault("catalog.image_dir", "./data/images")
	v.SetDefault("catalog.fetch_retries", 3)
	v.SetDefault("catalog.fetch_retry_delay", "500ms")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.enable_metrics", true)

	// Terminal ID
	v.SetDefault("terminal_id", "pos-terminal-1")
}
