package config

// SampleConfig returns a configuration with defaults applied and
// placeholder values for the fields that have no sensible default.
func SampleConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Store.Bucket = "my-bucket"
	cfg.Store.Endpoint = "http://localhost:9000"
	cfg.Store.UsePathStyle = true
	cfg.Mount.Mountpoint = "/mnt/driftfs"
	return cfg
}
