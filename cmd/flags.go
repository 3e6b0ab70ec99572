package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/livedown/internal/config"
)

// flagKeys maps flag names onto the configuration keys they override.
var flagKeys = map[string]string{
	"port":       "server.port",
	"host":       "server.host",
	"open":       "server.open",
	"browser":    "browser.command",
	"verbose":    "logging.verbose",
	"log-level":  "logging.level",
	"log-format": "logging.format",
}

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("port", "p", config.DefaultPort, "Port the preview server listens on")
	cmd.Flags().String("host", config.DefaultHost, "Host the preview server binds to")
}

func addVerboseFlag(cmd *cobra.Command) {
	cmd.Flags().BoolP("verbose", "v", false, "Enable verbose output")
}

// bindFlags binds the flags of the command being run. start and stop share
// keys, so binding happens per invocation rather than in init.
func bindFlags(cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		bindErr = viper.BindPFlag(key, f)
	})
	return bindErr
}
