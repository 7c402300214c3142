package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/driftfs/internal/cli/prompt"
	"github.com/marmos91/driftfs/pkg/config"
)

var (
	initForce          bool
	initNonInteractive bool
	initBucket         string
	initEndpoint       string
	initMountpoint     string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Initialize a DriftFS configuration file.

By default, the command prompts for the bucket, endpoint and mountpoint
and writes the configuration to $XDG_CONFIG_HOME/driftfs/config.yaml.
Use --config to specify a custom path, or the flags below together with
--non-interactive for scripted setups.

Examples:
  # Interactive initialization at the default location
  driftfs init

  # Scripted initialization
  driftfs init --non-interactive --bucket datasets --mountpoint /mnt/datasets

  # Force overwrite existing config
  driftfs init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().BoolVar(&initNonInteractive, "non-interactive", false, "Do not prompt; use flags and defaults")
	initCmd.Flags().StringVar(&initBucket, "bucket", "", "Bucket to mount")
	initCmd.Flags().StringVar(&initEndpoint, "endpoint", "", "S3 endpoint (empty for AWS)")
	initCmd.Flags().StringVar(&initMountpoint, "mountpoint", "", "Directory to mount at")
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := config.GetDefaultConfig()
	cfg.Store.Bucket = initBucket
	cfg.Store.Endpoint = initEndpoint
	cfg.Mount.Mountpoint = initMountpoint

	if !initNonInteractive {
		if err := promptForConfig(cfg); err != nil {
			if prompt.IsAborted(err) {
				return fmt.Errorf("aborted")
			}
			return err
		}
	} else {
		sample := config.SampleConfig()
		if cfg.Store.Bucket == "" {
			cfg.Store.Bucket = sample.Store.Bucket
		}
		if cfg.Mount.Mountpoint == "" {
			cfg.Mount.Mountpoint = sample.Mount.Mountpoint
		}
	}
	cfg.Store.UsePathStyle = cfg.Store.Endpoint != ""

	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if !initForce {
		if _, statErr := os.Stat(configPath); statErr == nil {
			if initNonInteractive {
				return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
			}
			overwrite, err := prompt.Confirm(fmt.Sprintf("Config file %s exists, overwrite", configPath), false)
			if err != nil || !overwrite {
				return fmt.Errorf("aborted")
			}
		}
	}

	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Mount with: driftfs mount")
	fmt.Printf("  3. Or specify custom config: driftfs mount --config %s\n", configPath)
	fmt.Println("\nCredentials note:")
	fmt.Println("  Leave access keys empty to use the default AWS credential chain,")
	fmt.Println("  or set them via environment variables:")
	fmt.Println("    export DRIFTFS_STORE_ACCESS_KEY_ID=...")
	fmt.Println("    export DRIFTFS_STORE_SECRET_ACCESS_KEY=...")

	return nil
}

// promptForConfig fills the fields that have no sensible default.
func promptForConfig(cfg *config.Config) error {
	var err error

	if cfg.Store.Bucket == "" {
		cfg.Store.Bucket, err = prompt.InputRequired("Bucket to mount")
		if err != nil {
			return err
		}
	}

	if cfg.Store.Endpoint == "" {
		cfg.Store.Endpoint, err = prompt.InputOptional("S3 endpoint (empty for AWS)")
		if err != nil {
			return err
		}
	}

	cfg.Store.Region, err = prompt.Input("Region", cfg.Store.Region)
	if err != nil {
		return err
	}

	if cfg.Mount.Mountpoint == "" {
		cfg.Mount.Mountpoint, err = prompt.Input("Mountpoint", "/mnt/driftfs")
		if err != nil {
			return err
		}
	}

	storeKeys, err := prompt.Confirm("Configure static credentials now", false)
	if err != nil {
		return err
	}
	if storeKeys {
		cfg.Store.AccessKeyID, err = prompt.InputRequired("Access key ID")
		if err != nil {
			return err
		}
		cfg.Store.SecretAccessKey, err = prompt.Password("Secret access key")
		if err != nil {
			return err
		}
	}

	return nil
}
