package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/xvcplay/pkg/chain"
	"github.com/OpenTraceLab/xvcplay/pkg/tap"
)

var endState string

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the TAP and park it in a stable state",
	Long: `Clock five TMS=1 cycles to force Test-Logic-Reset, then move the TAP to the
end state. The end state accepts state names (RunTestIdle, PauseDR) or SVF
spellings (IDLE, RESET, DRPAUSE, IRPAUSE).`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().StringVarP(&endState, "end-state", "e", "IDLE", "stable state to park the TAP in")
}

func runReset(cmd *cobra.Command, args []string) error {
	target, err := tap.ParseState(endState)
	if err != nil {
		return err
	}

	_, err = runRoutine(cmd.Context(), func(ctx context.Context, c *chain.Controller) error {
		if err := c.Reset(); err != nil {
			return err
		}
		return c.Park(target)
	})
	if err != nil {
		return err
	}
	fmt.Printf("TAP reset, now in %s\n", target)
	return nil
}
