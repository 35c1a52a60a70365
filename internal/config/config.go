// Package config provides configuration loading from a TOML file and environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// ServiceConfig holds configuration for the jobseries service.
type ServiceConfig struct {
	Port              string   `toml:"port" validate:"required,numeric"`
	MetricsPort       string   `toml:"metrics_port" validate:"required,numeric"`
	LogLevel          string   `toml:"log_level" validate:"oneof=debug info warn error"`
	IdentityHeader    string   `toml:"identity_header" validate:"required"`
	APIKey            string   `toml:"-"`
	ShutdownDrainWait Duration `toml:"shutdown_drain_wait"` // Time to wait for load balancer to drain (0 to skip)

	Metadata MetadataConfig `toml:"metadata"`
	Storage  StorageConfig  `toml:"storage"`
	Compute  ComputeConfig  `toml:"compute"`
	Notify   NotifyConfig   `toml:"notify"`
}

// MetadataConfig selects and configures the job/series metadata store.
type MetadataConfig struct {
	Backend    string `toml:"backend" validate:"oneof=memory postgres mysql sqlite badger"`
	DSN        string `toml:"dsn" validate:"required_if=Backend postgres,required_if=Backend mysql,required_if=Backend sqlite"`
	BadgerPath string `toml:"badger_path" validate:"required_if=Backend badger"`
	Migrate    bool   `toml:"migrate"` // Apply SQL schema on startup
}

// StorageConfig configures the object store holding job output.
type StorageConfig struct {
	Bucket       string `toml:"bucket" validate:"required"`
	Region       string `toml:"region"`
	Endpoint     string `toml:"endpoint"`
	UsePathStyle bool   `toml:"use_path_style"`
}

// ComputeConfig configures the provider backing job instances.
type ComputeConfig struct {
	Provider string `toml:"provider" validate:"oneof=ec2 docker"`
	Region   string `toml:"region"`
	Endpoint string `toml:"endpoint"`

	// Default provider credentials, used when a request carries none.
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"-"`
}

// NotifyConfig configures status change notifications. Disabled when URL is empty.
type NotifyConfig struct {
	URL         string   `toml:"url" validate:"omitempty,url"`
	SigningKey  string   `toml:"-"`
	Timeout     Duration `toml:"timeout"`
	MaxAttempts int      `toml:"max_attempts" validate:"gte=0,lte=10"`
}

// Duration is a time.Duration that reads from TOML strings such as "30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration.
func Default() *ServiceConfig {
	return &ServiceConfig{
		Port:              "8080",
		MetricsPort:       "9090",
		LogLevel:          "info",
		IdentityHeader:    "X-Caller-Identity",
		ShutdownDrainWait: Duration(5 * time.Second),
		Metadata: MetadataConfig{
			Backend: "memory",
		},
		Storage: StorageConfig{
			Bucket: "vrl-job-output",
			Region: "us-east-1",
		},
		Compute: ComputeConfig{
			Provider: "ec2",
			Region:   "us-east-1",
		},
		Notify: NotifyConfig{
			Timeout:     Duration(5 * time.Second),
			MaxAttempts: 3,
		},
	}
}

// Load builds the service configuration with priority: defaults -> TOML file -> environment.
// An empty path skips the file layer.
func Load(path string) (*ServiceConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadServiceConfig loads configuration using the CONFIG_FILE environment variable.
func LoadServiceConfig() (*ServiceConfig, error) {
	return Load(GetEnv("CONFIG_FILE", ""))
}

func applyEnvOverrides(cfg *ServiceConfig) {
	cfg.Port = GetEnv("PORT", cfg.Port)
	cfg.MetricsPort = GetEnv("METRICS_PORT", cfg.MetricsPort)
	cfg.LogLevel = GetEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.IdentityHeader = GetEnv("IDENTITY_HEADER", cfg.IdentityHeader)
	if key := GetSecretFile(GetEnv("API_KEY_FILE", "")); key != "" {
		cfg.APIKey = key
	}
	cfg.APIKey = GetEnv("API_KEY", cfg.APIKey)
	cfg.ShutdownDrainWait = Duration(GetDurationEnv("SHUTDOWN_DRAIN_WAIT", cfg.ShutdownDrainWait.Std()))

	cfg.Metadata.Backend = GetEnv("METADATA_BACKEND", cfg.Metadata.Backend)
	if dsn := GetSecretFile(GetEnv("METADATA_DSN_FILE", "")); dsn != "" {
		cfg.Metadata.DSN = dsn
	}
	cfg.Metadata.DSN = GetEnv("METADATA_DSN", cfg.Metadata.DSN)
	cfg.Metadata.BadgerPath = GetEnv("METADATA_BADGER_PATH", cfg.Metadata.BadgerPath)
	cfg.Metadata.Migrate = GetBoolEnv("METADATA_MIGRATE", cfg.Metadata.Migrate)

	cfg.Storage.Bucket = GetEnv("STORAGE_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.Region = GetEnv("STORAGE_REGION", cfg.Storage.Region)
	cfg.Storage.Endpoint = GetEnv("STORAGE_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.UsePathStyle = GetBoolEnv("STORAGE_USE_PATH_STYLE", cfg.Storage.UsePathStyle)

	cfg.Compute.Provider = GetEnv("COMPUTE_PROVIDER", cfg.Compute.Provider)
	cfg.Compute.Region = GetEnv("COMPUTE_REGION", cfg.Compute.Region)
	cfg.Compute.Endpoint = GetEnv("COMPUTE_ENDPOINT", cfg.Compute.Endpoint)
	cfg.Compute.AccessKeyID = GetEnv("PROVIDER_ACCESS_KEY_ID", cfg.Compute.AccessKeyID)
	if secret := GetSecretFile(GetEnv("PROVIDER_SECRET_ACCESS_KEY_FILE", "")); secret != "" {
		cfg.Compute.SecretAccessKey = secret
	}

	cfg.Notify.URL = GetEnv("NOTIFY_URL", cfg.Notify.URL)
	if key := GetSecretFile(GetEnv("NOTIFY_SIGNING_KEY_FILE", "")); key != "" {
		cfg.Notify.SigningKey = key
	}
	cfg.Notify.Timeout = Duration(GetDurationEnv("NOTIFY_TIMEOUT", cfg.Notify.Timeout.Std()))
	cfg.Notify.MaxAttempts = GetIntEnv("NOTIFY_MAX_ATTEMPTS", cfg.Notify.MaxAttempts)
}
