// Package config loads and validates the DriftFS configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DRIFTFS_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/driftfs/internal/bytesize"
)

// Config is the DriftFS mount configuration.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing and profiling
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Store configures the remote object store backing the mount
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// DataPath tunes the chunked read path: cache, fetch scheduling and
	// read-ahead
	DataPath DataPathConfig `mapstructure:"datapath" yaml:"datapath"`

	// DiskCache configures the optional on-disk chunk cache tier
	DiskCache DiskCacheConfig `mapstructure:"disk_cache" yaml:"disk_cache"`

	// Mount configures the FUSE mount itself
	Mount MountConfig `mapstructure:"mount" yaml:"mount"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file
	// path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing. When
// enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server. When
// Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the HTTP server
	// are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// StoreConfig configures the S3-compatible object store.
type StoreConfig struct {
	// Bucket is the bucket backing the mount (required)
	Bucket string `mapstructure:"bucket" validate:"required" yaml:"bucket"`

	// KeyPrefix scopes the mount to keys under this prefix. Empty mounts
	// the whole bucket.
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`

	// Region is the bucket's region
	// Default: "us-east-1"
	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint overrides the S3 endpoint, for MinIO and other
	// S3-compatible stores. Empty uses AWS.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// AccessKeyID and SecretAccessKey are static credentials. Empty
	// falls back to the default AWS credential chain.
	// Override: DRIFTFS_STORE_ACCESS_KEY_ID / DRIFTFS_STORE_SECRET_ACCESS_KEY
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`

	// UsePathStyle forces path-style addressing, required by most
	// non-AWS endpoints
	UsePathStyle bool `mapstructure:"use_path_style" yaml:"use_path_style"`

	// MaxAttempts is the per-request attempt budget for transient
	// failures
	// Default: 3
	MaxAttempts int `mapstructure:"max_attempts" validate:"omitempty,min=1" yaml:"max_attempts"`

	// InitialBackoff is the first retry delay; doubles per attempt up to
	// MaxBackoff
	// Default: 100ms / 2s
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

// DataPathConfig tunes the chunked read path.
type DataPathConfig struct {
	// ChunkSize is the cache and fetch granularity
	// Supports human-readable formats: "8MiB", "4MB"
	// Default: 8MiB
	ChunkSize bytesize.ByteSize `mapstructure:"chunk_size" yaml:"chunk_size,omitempty"`

	// CacheSize is the in-memory chunk cache budget
	// Default: 512MiB
	CacheSize bytesize.ByteSize `mapstructure:"cache_size" yaml:"cache_size,omitempty"`

	// Workers caps concurrent backend fetches
	// Default: 8
	Workers int `mapstructure:"workers" validate:"omitempty,min=1" yaml:"workers"`

	// QueueSize is the capacity of each fetch priority queue
	// Default: 256
	QueueSize int `mapstructure:"queue_size" validate:"omitempty,min=1" yaml:"queue_size"`

	// CoalesceMax is the maximum adjacent chunks merged into one ranged
	// request
	// Default: 4
	CoalesceMax uint32 `mapstructure:"coalesce_max" yaml:"coalesce_max"`

	// FetchTimeout bounds a single backend request
	// Default: 2m
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`

	// WindowMin, WindowStep and WindowMax shape the sequential
	// read-ahead window, in chunks
	// Defaults: 2 / 2 / 32
	WindowMin  uint32 `mapstructure:"window_min" yaml:"window_min"`
	WindowStep uint32 `mapstructure:"window_step" yaml:"window_step"`
	WindowMax  uint32 `mapstructure:"window_max" yaml:"window_max"`

	// SequentialThreshold is how many contiguous reads classify a handle
	// sequential
	// Default: 2
	SequentialThreshold int `mapstructure:"sequential_threshold" yaml:"sequential_threshold"`

	// PrefetchInflightMax bounds a single handle's outstanding prefetch,
	// in chunks
	// Default: 64
	PrefetchInflightMax int64 `mapstructure:"prefetch_inflight_max" yaml:"prefetch_inflight_max"`

	// LookupTTL is how long path lookups are cached
	// Default: 1s
	LookupTTL time.Duration `mapstructure:"lookup_ttl" yaml:"lookup_ttl"`
}

// DiskCacheConfig configures the optional Badger-backed disk chunk tier.
type DiskCacheConfig struct {
	// Enabled turns the disk tier on
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Path is the database directory (required when enabled)
	Path string `mapstructure:"path" validate:"required_if=Enabled true" yaml:"path,omitempty"`

	// TTL is how long chunks stay readable before expiring
	// Default: 24h
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`

	// GCInterval is how often value-log garbage collection runs
	// Default: 10m
	GCInterval time.Duration `mapstructure:"gc_interval" yaml:"gc_interval"`
}

// MountConfig configures the FUSE mount.
type MountConfig struct {
	// Mountpoint is the directory to mount at (required)
	Mountpoint string `mapstructure:"mountpoint" validate:"required" yaml:"mountpoint"`

	// FsName is the filesystem name shown in /proc/mounts
	// Default: "driftfs"
	FsName string `mapstructure:"fsname" yaml:"fsname"`

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool `mapstructure:"allow_other" yaml:"allow_other"`

	// AttrTimeout is how long the kernel may cache attributes
	// Default: matches datapath.lookup_ttl
	AttrTimeout time.Duration `mapstructure:"attr_timeout" yaml:"attr_timeout"`

	// Debug enables FUSE request logging
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// Load loads configuration from file, environment, and defaults.
// configPath empty uses the default location; a missing file yields the
// defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the file
// is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  driftfs init\n\n"+
				"Or specify a custom config file:\n"+
				"  driftfs <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  driftfs init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes the configuration to path in YAML. Credentials may be
// present, so the file is created owner-only.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures environment variables and the config file search
// path. Environment variables use the DRIFTFS_ prefix with underscores,
// e.g. DRIFTFS_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("DRIFTFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing
// file is not an error.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns the combined decode hook for custom types:
// human-readable byte sizes and durations.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory: $XDG_CONFIG_HOME or
// ~/.config, falling back to the current directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "driftfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "driftfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks for a config file at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory (used by the init
// command).
func GetConfigDir() string {
	return getConfigDir()
}
