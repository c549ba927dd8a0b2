package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/xvcplay/internal/config"
	"github.com/OpenTraceLab/xvcplay/internal/logging"
)

var (
	// Global settings, bound to persistent flags
	cfg        = config.Default()
	configPath string

	logger = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:   "xvcplay",
	Short: "JTAG scan host for Xilinx Virtual Cable agents",
	Long: `Drive JTAG scans against a remote Xilinx Virtual Cable (XVC) agent. Clock cycles
are packed into TMS/TDI bit planes, flushed to the agent in batches and the returned
TDO is verified under mask. The first mismatch or connection failure ends the run.

Settings come from flags, XVCPLAY_* environment variables, or a config file
(TOML, YAML or JSON by extension) keyed by flag name, in that order of precedence.

Examples:
  xvcplay serve --adapter simulator --sim-ids 0x0362D093       # Local agent without hardware
  xvcplay info                                                 # Query the agent
  xvcplay verify-idcode 0x0362D093                             # Check the chain IDCODE
  xvcplay idle --cycles 1000 --addr 10.0.0.7:2542              # Clock Run-Test/Idle`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	cfg.RegisterFlags(rootCmd.PersistentFlags())
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file (default ~/.config/xvcplay/config.toml)")
}

// setup resolves settings from the environment and config file and builds the
// logger.
func setup(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		if p, err := config.DefaultPath(); err == nil {
			path = p
		}
	}
	var file map[string]string
	if path != "" {
		var err error
		if file, err = config.LoadFile(path); err != nil {
			return err
		}
	}
	if err := config.Resolve(cmd.Flags(), file); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	l, err := logging.New(cmd.ErrOrStderr(), logging.Options{
		Verbosity: cfg.Verbosity,
		Format:    cfg.LogFormat,
		Journal:   cfg.Journal,
	})
	if err != nil {
		return err
	}
	logger = l
	return nil
}
