package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/driftfs/internal/fs"
	"github.com/marmos91/driftfs/internal/logger"
	"github.com/marmos91/driftfs/internal/telemetry"
	"github.com/marmos91/driftfs/pkg/cache"
	"github.com/marmos91/driftfs/pkg/cache/disk"
	"github.com/marmos91/driftfs/pkg/chunk"
	"github.com/marmos91/driftfs/pkg/config"
	"github.com/marmos91/driftfs/pkg/fetcher"
	"github.com/marmos91/driftfs/pkg/metrics"
	"github.com/marmos91/driftfs/pkg/resolver"
	s3store "github.com/marmos91/driftfs/pkg/store/object/s3"
	"github.com/marmos91/driftfs/pkg/stream"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/driftfs/pkg/metrics/prometheus"
)

var (
	foreground bool
	pidFile    string
	logFile    string
	mountDebug bool
)

var mountCmd = &cobra.Command{
	Use:   "mount [mountpoint]",
	Short: "Mount the configured bucket",
	Long: `Mount the configured S3 bucket as a read-only filesystem.

By default, the mount runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/driftfs/config.yaml. A mountpoint
argument overrides the configured one.

Examples:
  # Mount in background (default)
  driftfs mount

  # Mount in foreground at a specific directory
  driftfs mount /mnt/datasets --foreground

  # Mount with environment variable overrides
  DRIFTFS_LOGGING_LEVEL=DEBUG driftfs mount --foreground`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMount,
}

func init() {
	mountCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	mountCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/driftfs/driftfs.pid)")
	mountCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/driftfs/driftfs.log)")
	mountCmd.Flags().BoolVar(&mountDebug, "fuse-debug", false, "Log every FUSE request")
}

func runMount(cmd *cobra.Command, args []string) error {
	// Handle daemon mode (background)
	if !foreground {
		return startDaemon(args)
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Mount.Mountpoint = args[0]
	}
	if mountDebug {
		cfg.Mount.Debug = true
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryShutdown, err := telemetry.Init(ctx, cfg.Telemetry, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingShutdown, err := telemetry.InitProfiling(cfg.Telemetry.Profiling, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	// Initialize the metrics registry before constructing components so
	// their collectors register.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	// Remote object client
	awsClient, err := s3store.NewS3ClientFromConfig(ctx,
		cfg.Store.Endpoint,
		cfg.Store.Region,
		cfg.Store.AccessKeyID,
		cfg.Store.SecretAccessKey,
		cfg.Store.UsePathStyle,
	)
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}

	client, err := s3store.New(ctx, s3store.Config{
		Client:         awsClient,
		Bucket:         cfg.Store.Bucket,
		KeyPrefix:      cfg.Store.KeyPrefix,
		MaxAttempts:    uint(cfg.Store.MaxAttempts),
		InitialBackoff: cfg.Store.InitialBackoff,
		MaxBackoff:     cfg.Store.MaxBackoff,
		Metrics:        metrics.NewS3Metrics(),
	})
	if err != nil {
		return fmt.Errorf("failed to create object client: %w", err)
	}
	logger.Info("Object store configured",
		"bucket", cfg.Store.Bucket,
		"prefix", cfg.Store.KeyPrefix,
		"endpoint", cfg.Store.Endpoint)

	// Chunk cache
	chunkCache := cache.New(cache.Config{
		MaxBytes: cfg.DataPath.CacheSize.Uint64(),
		Metrics:  metrics.NewCacheMetrics(),
	})
	defer chunkCache.Close()
	logger.Info("Chunk cache configured",
		"chunk_size", cfg.DataPath.ChunkSize.String(),
		"cache_size", cfg.DataPath.CacheSize.String())

	// Optional disk tier
	var diskTier fetcher.DiskTier
	if cfg.DiskCache.Enabled {
		store, err := disk.Open(disk.Config{
			Path:       cfg.DiskCache.Path,
			TTL:        cfg.DiskCache.TTL,
			GCInterval: cfg.DiskCache.GCInterval,
		})
		if err != nil {
			return fmt.Errorf("failed to open disk cache: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("disk cache close error", "error", err)
			}
		}()
		diskTier = store
		logger.Info("Disk cache enabled", "path", cfg.DiskCache.Path, "ttl", cfg.DiskCache.TTL)
	}

	// Fetcher
	f := fetcher.New(client, chunkCache, fetcher.Config{
		Workers:      cfg.DataPath.Workers,
		QueueSize:    cfg.DataPath.QueueSize,
		CoalesceMax:  cfg.DataPath.CoalesceMax,
		FetchTimeout: cfg.DataPath.FetchTimeout,
		DiskTier:     diskTier,
		Metrics:      metrics.NewFetcherMetrics(),
	})
	f.Start()
	defer f.Stop(cfg.ShutdownTimeout)

	// Stream manager
	layout := chunk.NewLayout(cfg.DataPath.ChunkSize.Uint64())
	streams := stream.NewManager(layout, f, stream.Config{
		WindowMin:           cfg.DataPath.WindowMin,
		WindowStep:          cfg.DataPath.WindowStep,
		WindowMax:           cfg.DataPath.WindowMax,
		SequentialThreshold: cfg.DataPath.SequentialThreshold,
		PrefetchInflightMax: cfg.DataPath.PrefetchInflightMax,
		Metrics:             metrics.NewStreamMetrics(),
	})

	// Path resolver
	res := resolver.New(client, resolver.Config{
		TTL: cfg.DataPath.LookupTTL,
	})

	// Observability endpoint (if enabled)
	if cfg.Metrics.Enabled {
		statsFn := func() any {
			blocking, prefetch := f.QueueDepths()
			return map[string]any{
				"cache":          chunkCache.Stats(),
				"open_streams":   streams.OpenCount(),
				"queue_blocking": blocking,
				"queue_prefetch": prefetch,
			}
		}
		metricsServer := metrics.NewServer(metrics.ServerConfig{
			Address: fmt.Sprintf(":%d", cfg.Metrics.Port),
		}, statsFn)
		metricsServer.Start()
		defer func() {
			if err := metricsServer.Shutdown(context.Background()); err != nil {
				logger.Error("metrics server shutdown error", "error", err)
			}
		}()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	}

	// Mount
	server, err := fs.Mount(fs.Options{
		Mountpoint:  cfg.Mount.Mountpoint,
		Resolver:    res,
		Streams:     streams,
		FsName:      cfg.Mount.FsName,
		AllowOther:  cfg.Mount.AllowOther,
		AttrTimeout: cfg.Mount.AttrTimeout,
		Debug:       cfg.Mount.Debug,
	})
	if err != nil {
		return fmt.Errorf("failed to mount: %w", err)
	}
	logger.Info("Mounted", "mountpoint", cfg.Mount.Mountpoint, "fsname", cfg.Mount.FsName)

	// Write PID file if specified
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	// Serve until unmounted or signalled
	serverDone := make(chan struct{})
	go func() {
		server.Wait()
		close(serverDone)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Filesystem is serving. Press Ctrl+C to unmount.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, unmounting")
		cancel()

		if err := fs.Unmount(server, cfg.Mount.Mountpoint); err != nil {
			logger.Error("Unmount error", "error", err)
			return err
		}
		<-serverDone
		logger.Info("Unmounted")

	case <-serverDone:
		signal.Stop(sigChan)
		logger.Info("Filesystem unmounted externally")
	}

	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// startDaemon starts the mount as a background daemon process.
func startDaemon(args []string) error {
	stateDir := GetDefaultStateDir()

	// Create state directory if it doesn't exist
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// Set default PID file if not specified
	pidPath := pidFile
	if pidPath == "" {
		pidPath = filepath.Join(stateDir, "driftfs.pid")
	}

	// Check if already running
	if _, err := os.Stat(pidPath); err == nil {
		pidData, err := os.ReadFile(pidPath)
		if err == nil {
			var pid int
			if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err == nil {
				if process, err := os.FindProcess(pid); err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return fmt.Errorf("driftfs is already running (PID %d)\nUse 'driftfs umount' to stop the running instance", pid)
					}
				}
			}
		}
		// Stale PID file, remove it
		_ = os.Remove(pidPath)
	}

	// Set default log file if not specified
	logPath := logFile
	if logPath == "" {
		logPath = filepath.Join(stateDir, "driftfs.log")
	}

	// Get the executable path
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Build arguments for the daemon process
	daemonArgs := []string{"mount", "--foreground", "--pid-file", pidPath}
	daemonArgs = append(daemonArgs, args...)
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}
	if mountDebug {
		daemonArgs = append(daemonArgs, "--fuse-debug")
	}

	// Create the daemon process
	cmd := exec.Command(executable, daemonArgs...)

	// Open log file for stdout/stderr
	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	cmd.Stdout = logFileHandle
	cmd.Stderr = logFileHandle

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	// Start the daemon
	if err := cmd.Start(); err != nil {
		_ = logFileHandle.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	_ = logFileHandle.Close()

	fmt.Printf("driftfs started in background (PID %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'driftfs umount' to unmount")

	return nil
}
