package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/xvcplay/pkg/xvc"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Query the XVC agent",
	Long: `Connect to the agent, print its protocol version and vector limit, and
optionally apply the --tck-hz clock.`,
	Args: cobra.NoArgs,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client, err := dialAgent(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	info, err := client.Info(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Agent %s\n", cfg.Addr)
	fmt.Printf("  Protocol:     %s\n", strings.TrimSuffix(info.Version, ":"))
	fmt.Printf("  Max vector:   %d bytes (%d bits per shift)\n", info.MaxVectorBytes, info.MaxShiftBits())

	if cfg.TCKHz > 0 {
		period, err := xvc.PeriodFromHz(cfg.TCKHz)
		if err != nil {
			return err
		}
		actual, err := client.SetTCK(ctx, period)
		if err != nil {
			return err
		}
		fmt.Printf("  TCK period:   %d ns (%d Hz)\n", actual, xvc.HzFromPeriod(actual))
	}
	return nil
}
