package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/xvcplay/pkg/jtag"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List adapters that serve can expose",
	Long: `Scan the host for CMSIS-DAP probes and print a summary of the adapters the
serve command can use. The simulator is always listed.`,
	Args: cobra.NoArgs,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	infos, err := jtag.DiscoverInterfaces(ctx)
	if err != nil {
		return fmt.Errorf("discover interfaces: %w", err)
	}

	fmt.Println("Detected JTAG interfaces:")
	for _, iface := range infos {
		fmt.Printf("  - %s [%s] (VID:PID %04X:%04X)\n", iface.Label(), iface.Kind, iface.VendorID, iface.ProductID)
	}
	return nil
}
