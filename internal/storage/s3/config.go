package s3

import (
	"time"

	"github.com/objectfs/viewersettings/pkg/retry"
)

// Config represents S3 backend configuration
type Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	ForcePathStyle  bool   `yaml:"force_path_style"`

	// SDK-level retries of a single call
	MaxRetries     int           `yaml:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Retry wraps whole backend operations
	Retry retry.Config `yaml:"-"`
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Region:         "us-east-1",
		MaxRetries:     3,
		RequestTimeout: 30 * time.Second,
		Retry:          retry.DefaultConfig(),
	}
}

// StaticCredentials reports whether explicit keys are configured.
func (c *Config) StaticCredentials() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}
