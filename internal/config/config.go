package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration.
type Config struct {
	Server    ServerConfig
	Worker    WorkerConfig
	Push      PushConfig
	Storage   StorageConfig
	Loading   LoadingConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP surface configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8600"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// WorkerConfig holds background-script registration configuration.
type WorkerConfig struct {
	ScriptURL           string        `envconfig:"WORKER_SCRIPT_URL" default:"/sw.js"`
	Scope               string        `envconfig:"WORKER_SCOPE" default:"/"`
	ArtifactURL         string        `envconfig:"WORKER_ARTIFACT_URL"`
	UpdateCheckInterval time.Duration `envconfig:"UPDATE_CHECK_INTERVAL" default:"1h"`
	ControlWaitTimeout  time.Duration `envconfig:"CONTROL_WAIT_TIMEOUT" default:"10s"`
}

// PushConfig holds push subscription configuration.
type PushConfig struct {
	VAPIDPublicKey string `envconfig:"VAPID_PUBLIC_KEY"`
	RegistryURL    string `envconfig:"REGISTRY_URL" default:"http://localhost:8080/api/notifications"`
	UserID         string `envconfig:"USER_ID"`
}

// StorageConfig holds durable local state configuration.
type StorageConfig struct {
	Path        string        `envconfig:"STORAGE_PATH" default:"runtime.db"`
	BusyTimeout time.Duration `envconfig:"STORAGE_BUSY_TIMEOUT" default:"5s"`
}

// LoadingConfig holds loading-simulation bounds.
type LoadingConfig struct {
	MinLoadTime time.Duration `envconfig:"MIN_LOAD_TIME_MS" default:"0"`
	MaxLoadTime time.Duration `envconfig:"MAX_LOAD_TIME_MS" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8600",
			Host: "127.0.0.1",
		},
		Worker: WorkerConfig{
			ScriptURL:           "/sw.js",
			Scope:               "/",
			UpdateCheckInterval: time.Hour,
			ControlWaitTimeout:  10 * time.Second,
		},
		Push: PushConfig{
			RegistryURL: "http://localhost:8080/api/notifications",
		},
		Storage: StorageConfig{
			Path:        "runtime.db",
			BusyTimeout: 5 * time.Second,
		},
		Loading: LoadingConfig{
			MinLoadTime: 0,
			MaxLoadTime: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}
