package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/xvcplay/pkg/chain"
)

var idleCycles int

var idleCmd = &cobra.Command{
	Use:   "idle",
	Short: "Clock TCK in Run-Test/Idle",
	Long: `Move the TAP to Run-Test/Idle and clock the requested number of idle cycles,
then flush. Useful as a keep-alive or to wait out device operations on an agent
that has no wall-clock delay.`,
	Args: cobra.NoArgs,
	RunE: runIdle,
}

func init() {
	rootCmd.AddCommand(idleCmd)

	idleCmd.Flags().IntVarP(&idleCycles, "cycles", "n", 100, "number of idle TCK cycles")
}

func runIdle(cmd *cobra.Command, args []string) error {
	_, err := runRoutine(cmd.Context(), func(ctx context.Context, c *chain.Controller) error {
		return c.Idle(idleCycles)
	})
	if err != nil {
		return err
	}
	fmt.Printf("Clocked %d idle cycle(s)\n", idleCycles)
	return nil
}
