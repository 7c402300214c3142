package config

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/driftfs/internal/cli/output"
	"github.com/marmos91/driftfs/pkg/config"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the current DriftFS configuration.

By default outputs YAML format. Use --output to change format.

Examples:
  # Show default config as YAML
  driftfs config show

  # Show as JSON
  driftfs config show --output json

  # Show specific config file
  driftfs config show --config /etc/driftfs/config.yaml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Never print credentials
	cfg.Store.SecretAccessKey = ""

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, cfg)
	default:
		return output.PrintYAML(os.Stdout, cfg)
	}
}
