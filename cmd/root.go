package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/livedown/internal/config"
	"github.com/conneroisu/livedown/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "livedown",
	Short: "Live markdown previews in the browser",
	Long: `Livedown renders a markdown file as GitHub flavoured HTML and keeps every
open browser tab in sync with the file as you edit it.

Quick Start:
  livedown start README.md --open   Preview README.md and open a browser
  livedown stop                     Stop the running preview`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .livedown.yml, can also use LIVEDOWN_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

// initConfig resolves the config file and environment bindings.
//
// Config file lookup, highest priority first:
//  1. --config flag
//  2. LIVEDOWN_CONFIG_FILE environment variable
//  3. .livedown.yml in the current directory
//
// Every key can also be overridden from the environment with the LIVEDOWN_
// prefix, e.g. LIVEDOWN_SERVER_PORT=4000.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".livedown")
	}

	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(config.EnvKeyReplacer())
	viper.AutomaticEnv()

	// A missing config file is fine; defaults and env still apply
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
		fmt.Fprintln(os.Stderr, "Ignoring config file:", err)
	}
}

func newLogger(cfg *config.Config, w io.Writer) logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  cfg.LogLevel(),
		Format: cfg.Logging.Format,
		Output: w,
	}).WithComponent("livedown")
}
