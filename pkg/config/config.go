package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harmonium-app/plugin-registry/pkg/github"
	"github.com/harmonium-app/plugin-registry/pkg/storage"
)

// DefaultTopic is the topic label plugin authors put on their
// repositories to opt into discovery.
const DefaultTopic = "harmonium-plugin"

// Config holds all builder configuration.
type Config struct {
	// Topic is the discovery topic label.
	Topic string `yaml:"topic"`

	// Workers bounds concurrent fetch+validate cycles. 1 means the
	// reference sequential behavior.
	Workers int `yaml:"workers"`

	LogLevel string `yaml:"log_level"`

	GitHub  github.Config  `yaml:"github"`
	Storage storage.Config `yaml:"storage"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Topic:    DefaultTopic,
		Workers:  1,
		LogLevel: "info",
		GitHub:   github.DefaultConfig(),
		Storage:  storage.DefaultConfig(),
	}
}

// Load builds the configuration from defaults, an optional YAML file,
// and environment variables, in increasing precedence. path may be
// empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the configuration. The
// GitHub token is only ever read from the environment, never from the
// config file.
func (c *Config) applyEnv() {
	c.Topic = getEnv("REGISTRY_TOPIC", c.Topic)
	c.Workers = getEnvInt("REGISTRY_WORKERS", c.Workers)
	c.LogLevel = getEnv("REGISTRY_LOG_LEVEL", c.LogLevel)

	c.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	c.GitHub.APIBaseURL = getEnv("REGISTRY_GITHUB_API_URL", c.GitHub.APIBaseURL)
	c.GitHub.RawBaseURL = getEnv("REGISTRY_GITHUB_RAW_URL", c.GitHub.RawBaseURL)
	c.GitHub.PageSize = getEnvInt("REGISTRY_PAGE_SIZE", c.GitHub.PageSize)
	c.GitHub.RequestTimeout = getEnvDuration("REGISTRY_REQUEST_TIMEOUT", c.GitHub.RequestTimeout)
	if retries := getEnvInt("REGISTRY_MAX_RETRIES", -1); retries >= 0 {
		c.GitHub.MaxRetries = uint64(retries)
	}
	c.GitHub.RetryInitialDelay = getEnvDuration("REGISTRY_RETRY_DELAY", c.GitHub.RetryInitialDelay)

	c.Storage.Type = getEnv("REGISTRY_STORAGE_TYPE", c.Storage.Type)
	c.Storage.OutputPath = getEnv("REGISTRY_OUTPUT_PATH", c.Storage.OutputPath)
	c.Storage.S3Bucket = getEnv("REGISTRY_S3_BUCKET", c.Storage.S3Bucket)
	c.Storage.S3Key = getEnv("REGISTRY_S3_KEY", c.Storage.S3Key)
	c.Storage.S3Region = getEnv("REGISTRY_S3_REGION", c.Storage.S3Region)
	c.Storage.S3Endpoint = getEnv("REGISTRY_S3_ENDPOINT", c.Storage.S3Endpoint)
	c.Storage.S3AccessKey = getEnv("REGISTRY_S3_ACCESS_KEY", c.Storage.S3AccessKey)
	c.Storage.S3SecretKey = getEnv("REGISTRY_S3_SECRET_KEY", c.Storage.S3SecretKey)
	if pathStyle := os.Getenv("REGISTRY_S3_USE_PATH_STYLE"); pathStyle != "" {
		c.Storage.S3UsePathStyle = strings.ToLower(pathStyle) == "true" || pathStyle == "1"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Topic == "" {
		return fmt.Errorf("discovery topic is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.GitHub.PageSize < 1 || c.GitHub.PageSize > 100 {
		return fmt.Errorf("page size must be between 1 and 100")
	}

	switch c.Storage.Type {
	case "filesystem":
		if c.Storage.OutputPath == "" {
			return fmt.Errorf("output path is required for filesystem storage")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 storage")
		}
		if c.Storage.S3Key == "" {
			return fmt.Errorf("S3 key is required for s3 storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be filesystem or s3)", c.Storage.Type)
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
