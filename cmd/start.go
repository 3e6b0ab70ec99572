package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/livedown/internal/config"
	"github.com/conneroisu/livedown/internal/errors"
	"github.com/conneroisu/livedown/internal/services"
)

var startCmd = &cobra.Command{
	Use:   "start <file>",
	Short: "Preview a markdown file in the browser",
	Long: `Start a preview server for a markdown file. Every browser tab viewing the
preview is updated whenever the file is saved. The server runs in the
foreground until interrupted or stopped with "livedown stop".

Examples:
  livedown start README.md
  livedown start README.md --port 4000 --open
  livedown start notes.md --open --browser "'google chrome' --incognito"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	addServerFlags(startCmd)
	addVerboseFlag(startCmd)
	startCmd.Flags().Bool("open", false, "Open the preview in a browser")
	startCmd.Flags().String("browser", "", "Browser command used by --open")
}

func runStart(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		_ = cmd.Help()
		return errors.ErrMissingPath
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "failed to load configuration")
	}
	cfg.TargetFile = args[0]

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := services.NewServeService(cfg, newLogger(cfg, cmd.ErrOrStderr()))
	return svc.Serve(ctx, services.ServeOptions{
		Path: cfg.TargetFile,
		Out:  cmd.OutOrStdout(),
	})
}
