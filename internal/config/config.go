package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Object store backends.
const (
	BackendS3 = "s3"
	BackendFS = "fs"
)

// Config represents the complete application configuration
type Config struct {
	App         AppConfig         `yaml:"app"`
	Server      ServerConfig      `yaml:"server"`
	Redis       RedisConfig       `yaml:"redis"`
	ObjectStore ObjectStoreConfig `yaml:"objectstore"`
	Upload      UploadConfig      `yaml:"upload"`
	Engine      EngineConfig      `yaml:"engine"`
	Worker      WorkerConfig      `yaml:"worker"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig holds Redis connection and key namespace configuration
type RedisConfig struct {
	URL           string        `yaml:"url"`
	Namespace     string        `yaml:"namespace"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// ObjectStoreConfig selects and configures the artifact store backend
type ObjectStoreConfig struct {
	Backend string   `yaml:"backend"` // s3 | fs
	S3      S3Config `yaml:"s3"`
	FS      FSConfig `yaml:"fs"`
}

// S3Config holds S3 bucket configuration
type S3Config struct {
	Region         string `yaml:"region"`
	Bucket         string `yaml:"bucket"`
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`
}

// FSConfig holds local filesystem store configuration
type FSConfig struct {
	Root string `yaml:"root"`
}

// UploadConfig holds upload-credential defaults
type UploadConfig struct {
	DefaultFolder      string        `yaml:"default_folder"`
	DefaultContentType string        `yaml:"default_content_type"`
	DefaultExpiry      time.Duration `yaml:"default_expiry"`
	MaxExpiry          time.Duration `yaml:"max_expiry"`
	DownloadExpiry     time.Duration `yaml:"download_expiry"`
}

// EngineConfig holds geometry engine invocation configuration
type EngineConfig struct {
	Binary  string        `yaml:"binary"`
	Script  string        `yaml:"script"`
	Timeout time.Duration `yaml:"timeout"` // 0 = unbounded
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int                 `yaml:"concurrency"`
	DequeueTimeout  time.Duration       `yaml:"dequeue_timeout"`
	WorkDir         string              `yaml:"work_dir"`
	OutputPrefix    string              `yaml:"output_prefix"`
	ShutdownTimeout time.Duration       `yaml:"shutdown_timeout"`
	Transfer        TransferRetryConfig `yaml:"transfer"`
}

// TransferRetryConfig holds artifact transfer retry settings
type TransferRetryConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// Load reads and parses the configuration file, then applies the
// deployment environment overrides.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvOverrides()

	return &config, nil
}

// applyEnvOverrides lets deployment environments override the settings
// that vary per environment without editing the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		c.ObjectStore.S3.Bucket = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		c.ObjectStore.S3.Region = v
	}
	if v := os.Getenv("BLENDER_BIN"); v != "" {
		c.Engine.Binary = v
	}
	if v := os.Getenv("PROCESS_SCRIPT"); v != "" {
		c.Engine.Script = v
	}
}

func (c *Config) validateShared() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("redis url is required")
	}

	switch c.ObjectStore.Backend {
	case BackendS3:
		if c.ObjectStore.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket is required")
		}
		if c.ObjectStore.S3.Region == "" {
			return fmt.Errorf("s3 region is required")
		}
	case BackendFS:
		if c.ObjectStore.FS.Root == "" {
			return fmt.Errorf("fs store root is required")
		}
	default:
		return fmt.Errorf("unknown objectstore backend: %q (must be %s or %s)", c.ObjectStore.Backend, BackendS3, BackendFS)
	}

	return nil
}

// ValidateAPIConfig checks the configuration needed by the API service
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	return c.validateShared()
}

// ValidateWorkerConfig checks the configuration needed by the worker service
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.OutputPrefix == "" {
		return fmt.Errorf("worker output_prefix is required")
	}

	if c.Engine.Binary == "" {
		return fmt.Errorf("engine binary is required")
	}

	if c.Engine.Script == "" {
		return fmt.Errorf("engine script is required")
	}

	return nil
}
