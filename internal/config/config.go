package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/objectfs/viewersettings/internal/storage/gcs"
	"github.com/objectfs/viewersettings/internal/storage/s3"
	"github.com/objectfs/viewersettings/pkg/retry"
	"github.com/objectfs/viewersettings/pkg/utils"
)

const envPrefix = "VIEWERSETTINGS_"

// Configuration represents the complete application configuration
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Settings   SettingsConfig   `yaml:"settings"`
	Storage    StorageConfig    `yaml:"storage"`
	Network    NetworkConfig    `yaml:"network"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFile   string `yaml:"log_file"`
	LogFormat string `yaml:"log_format"`
}

// SettingsConfig controls how a settings resource is persisted
type SettingsConfig struct {
	AutosaveInterval  time.Duration `yaml:"autosave_interval"`
	FileName          string        `yaml:"file_name"`
	ShareWithAllUsers bool          `yaml:"share_with_all_users"`
	TempDir           string        `yaml:"temp_dir"`
}

// StorageConfig holds the object-storage backend settings
type StorageConfig struct {
	S3  s3.Config  `yaml:"s3"`
	GCS gcs.Config `yaml:"gcs"`
}

// NetworkConfig represents network configuration
type NetworkConfig struct {
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig represents retry settings
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// MonitoringConfig represents monitoring settings
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFile:   "",
			LogFormat: "text",
		},
		Settings: SettingsConfig{
			AutosaveInterval: 5 * time.Minute,
			FileName:         "viewer-settings.xml",
		},
		Storage: StorageConfig{
			S3:  *s3.NewDefaultConfig(),
			GCS: *gcs.NewDefaultConfig(),
		},
		Network: NetworkConfig{
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   200 * time.Millisecond,
				MaxDelay:    5 * time.Second,
			},
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:   false,
				Address:   ":9090",
				Path:      "/metrics",
				Namespace: "viewersettings",
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	// Global settings
	if val := getenv("LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := getenv("LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := getenv("LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}

	// Settings persistence
	if val := getenv("AUTOSAVE_INTERVAL"); val != "" {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid %sAUTOSAVE_INTERVAL: %w", envPrefix, err)
		}
		c.Settings.AutosaveInterval = duration
	}
	if val := getenv("FILE_NAME"); val != "" {
		c.Settings.FileName = val
	}
	if val := getenv("SHARE_WITH_ALL_USERS"); val != "" {
		c.Settings.ShareWithAllUsers = strings.ToLower(val) == "true"
	}
	if val := getenv("TEMP_DIR"); val != "" {
		c.Settings.TempDir = val
	}

	// Object storage
	if val := getenv("S3_REGION"); val != "" {
		c.Storage.S3.Region = val
	}
	if val := getenv("S3_ENDPOINT"); val != "" {
		c.Storage.S3.Endpoint = val
	}
	if val := getenv("S3_FORCE_PATH_STYLE"); val != "" {
		c.Storage.S3.ForcePathStyle = strings.ToLower(val) == "true"
	}
	if val := getenv("GCS_PROJECT"); val != "" {
		c.Storage.GCS.Project = val
	}
	if val := getenv("GCS_ENDPOINT"); val != "" {
		c.Storage.GCS.Endpoint = val
	}
	if val := getenv("GCS_CREDENTIALS_FILE"); val != "" {
		c.Storage.GCS.CredentialsFile = val
	}

	// Retry
	if val := getenv("RETRY_MAX_ATTEMPTS"); val != "" {
		if attempts, err := strconv.Atoi(val); err == nil {
			c.Network.Retry.MaxAttempts = attempts
		}
	}

	// Metrics
	if val := getenv("METRICS_ENABLED"); val != "" {
		c.Monitoring.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	if val := getenv("METRICS_ADDRESS"); val != "" {
		c.Monitoring.Metrics.Address = val
	}

	return nil
}

func getenv(name string) string {
	return os.Getenv(envPrefix + name)
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if c.Settings.AutosaveInterval <= 0 {
		return fmt.Errorf("autosave_interval must be greater than 0")
	}

	if err := utils.ValidateFileName(c.Settings.FileName); err != nil {
		return fmt.Errorf("invalid file_name: %w", err)
	}

	if c.Network.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max_attempts must be greater than 0")
	}

	if c.Network.Retry.MaxDelay < c.Network.Retry.BaseDelay {
		return fmt.Errorf("retry max_delay cannot be less than base_delay")
	}

	if c.Storage.S3.RequestTimeout < 0 || c.Storage.GCS.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout cannot be negative")
	}

	if _, err := utils.ParseLogLevel(c.Global.LogLevel); err != nil || c.Global.LogLevel == "" {
		validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	switch c.Global.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log_format: %s (must be text or json)", c.Global.LogFormat)
	}

	if c.Monitoring.Metrics.Enabled && c.Monitoring.Metrics.Address == "" {
		return fmt.Errorf("metrics address is required when metrics are enabled")
	}

	return nil
}

// RetryPolicy converts the network retry settings for the storage backends.
func (c *Configuration) RetryPolicy() retry.Config {
	policy := retry.DefaultConfig()
	policy.MaxAttempts = c.Network.Retry.MaxAttempts
	policy.InitialDelay = c.Network.Retry.BaseDelay
	policy.MaxDelay = c.Network.Retry.MaxDelay
	return policy
}

// LogOptions returns the logging settings.
func (c *Configuration) LogOptions() utils.LogOptions {
	return utils.LogOptions{
		Level:  c.Global.LogLevel,
		Format: c.Global.LogFormat,
		File:   c.Global.LogFile,
	}
}
