package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/livedown/internal/version"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for livedown.

Examples:
  livedown version                # Show version, commit and platform
  livedown version --short        # Show the version only
  livedown version --format json  # Output as JSON`,
	Args: cobra.NoArgs,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringP("format", "f", "text", "Output format (text, json, yaml)")
	versionCmd.Flags().Bool("short", false, "Show short version only")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	short, _ := cmd.Flags().GetBool("short")
	info := version.Get()
	out := cmd.OutOrStdout()

	switch format {
	case "text":
		if short {
			fmt.Fprintln(out, info.Short())
			return nil
		}
		fmt.Fprintf(out, "livedown %s\n", info.String())
		return nil
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		defer encoder.Close()
		return encoder.Encode(info)
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json, yaml)", format)
	}
}
