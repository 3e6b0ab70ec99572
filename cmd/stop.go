package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/livedown/internal/config"
	"github.com/conneroisu/livedown/internal/errors"
	"github.com/conneroisu/livedown/internal/services"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running preview server",
	Long: `Ask the preview server listening on --host and --port to shut down. Open
viewers are told the server is going away before it exits.`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)

	addServerFlags(stopCmd)
	addVerboseFlag(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "failed to load configuration")
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	err = services.StopRemote(cmd.Context(), cfg.Server.Host, cfg.Server.Port, cfg.Server.ShutdownTimeout)
	if err != nil {
		logger.Debug(cmd.Context(), "Stop request failed", "error", err.Error())
		fmt.Fprintln(cmd.OutOrStdout(), "Cannot stop the server, is it running?")
		return nil
	}

	logger.Debug(cmd.Context(), "Server stopped successfully", "port", cfg.Server.Port)
	return nil
}
