package config

import (
	"time"

	"github.com/marmos91/driftfs/internal/bytesize"
)

// ApplyDefaults fills in zero-valued fields with sensible defaults.
// Explicitly configured values are never overridden.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyStoreDefaults(&cfg.Store)
	applyDataPathDefaults(&cfg.DataPath)
	applyDiskCacheDefaults(&cfg.DiskCache)
	applyMountDefaults(&cfg.Mount, &cfg.DataPath)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = "INFO"
	}
	if l.Format == "" {
		l.Format = "text"
	}
	if l.Output == "" {
		l.Output = "stdout"
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Endpoint == "" {
		t.Endpoint = "localhost:4317"
	}
	if t.SampleRate == 0 {
		t.SampleRate = 1.0
	}
	if t.Profiling.Endpoint == "" {
		t.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(t.Profiling.ProfileTypes) == 0 {
		t.Profiling.ProfileTypes = []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space"}
	}
}

func applyMetricsDefaults(m *MetricsConfig) {
	if m.Port == 0 {
		m.Port = 9090
	}
}

func applyStoreDefaults(s *StoreConfig) {
	if s.Region == "" {
		s.Region = "us-east-1"
	}
	if s.MaxAttempts == 0 {
		s.MaxAttempts = 3
	}
	if s.InitialBackoff == 0 {
		s.InitialBackoff = 100 * time.Millisecond
	}
	if s.MaxBackoff == 0 {
		s.MaxBackoff = 2 * time.Second
	}
}

func applyDataPathDefaults(d *DataPathConfig) {
	if d.ChunkSize == 0 {
		d.ChunkSize = 8 * bytesize.MiB
	}
	if d.CacheSize == 0 {
		d.CacheSize = 512 * bytesize.MiB
	}
	if d.Workers == 0 {
		d.Workers = 8
	}
	if d.QueueSize == 0 {
		d.QueueSize = 256
	}
	if d.CoalesceMax == 0 {
		d.CoalesceMax = 4
	}
	if d.FetchTimeout == 0 {
		d.FetchTimeout = 2 * time.Minute
	}
	if d.WindowMin == 0 {
		d.WindowMin = 2
	}
	if d.WindowStep == 0 {
		d.WindowStep = 2
	}
	if d.WindowMax == 0 {
		d.WindowMax = 32
	}
	if d.SequentialThreshold == 0 {
		d.SequentialThreshold = 2
	}
	if d.PrefetchInflightMax == 0 {
		d.PrefetchInflightMax = 64
	}
	if d.LookupTTL == 0 {
		d.LookupTTL = time.Second
	}
}

func applyDiskCacheDefaults(d *DiskCacheConfig) {
	if d.TTL == 0 {
		d.TTL = 24 * time.Hour
	}
	if d.GCInterval == 0 {
		d.GCInterval = 10 * time.Minute
	}
}

func applyMountDefaults(m *MountConfig, d *DataPathConfig) {
	if m.FsName == "" {
		m.FsName = "driftfs"
	}
	if m.AttrTimeout == 0 {
		m.AttrTimeout = d.LookupTTL
	}
}

// GetDefaultConfig returns a configuration with all defaults applied.
// Store.Bucket and Mount.Mountpoint remain empty and must be set before
// the config validates.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
