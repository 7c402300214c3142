package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/driftfs/internal/cli/output"
	"github.com/marmos91/driftfs/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the DriftFS configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  driftfs config validate

  # Validate specific config file
  driftfs config validate --config /etc/driftfs/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Determine path for display
	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string

	if cfg.Store.Endpoint != "" && !cfg.Store.UsePathStyle {
		warnings = append(warnings, "custom endpoint without use_path_style - most S3-compatible stores need path-style addressing")
	}
	if cfg.DiskCache.Enabled && cfg.DiskCache.Path == "" {
		warnings = append(warnings, "disk cache enabled without a path")
	}
	if cfg.Store.AccessKeyID == "" {
		warnings = append(warnings, "no static credentials - the default AWS credential chain will be used")
	}

	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	return output.PrintTable(os.Stdout, configSummary{cfg})
}

// configSummary renders the key settings as a table.
type configSummary struct {
	cfg *config.Config
}

func (s configSummary) Headers() []string {
	return []string{"Setting", "Value"}
}

func (s configSummary) Rows() [][]string {
	diskCache := "disabled"
	if s.cfg.DiskCache.Enabled {
		diskCache = s.cfg.DiskCache.Path
	}
	return [][]string{
		{"Bucket", s.cfg.Store.Bucket},
		{"Key prefix", s.cfg.Store.KeyPrefix},
		{"Mountpoint", s.cfg.Mount.Mountpoint},
		{"Chunk size", s.cfg.DataPath.ChunkSize.String()},
		{"Cache size", s.cfg.DataPath.CacheSize.String()},
		{"Disk cache", diskCache},
		{"Log level", s.cfg.Logging.Level},
	}
}
