package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/livedown/internal/config"
	"github.com/conneroisu/livedown/internal/errors"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect livedown configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the configuration livedown would run with, after applying the
config file, LIVEDOWN_* environment variables and defaults.

Examples:
  livedown config show                 # Show as YAML
  livedown config show --format json   # Show as JSON`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)

	configShowCmd.Flags().String("format", "yaml", "Output format (yaml, json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	cfg, err := config.Load()
	if err != nil {
		return errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "failed to load configuration")
	}

	out := cmd.OutOrStdout()
	switch format {
	case "yaml":
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(cfg)
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s (supported: yaml, json)", format)
	}
}
