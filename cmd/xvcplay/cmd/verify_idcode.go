package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/xvcplay/pkg/bsdl"
	"github.com/OpenTraceLab/xvcplay/pkg/chain"
	"github.com/OpenTraceLab/xvcplay/pkg/idcode"
)

var verifyIDCodeCmd = &cobra.Command{
	Use:   "verify-idcode IDCODE...",
	Short: "Verify the IDCODEs of the JTAG chain",
	Long: `Reset the chain, shift out the IDCODE register of every device and compare it
against the expected values, nearest-to-TDO device first.

An IDCODE may be hex (0x0362D093), hex with a mask (0x0362D093/0x0FFFFFFF), or 32
binary digits with X for don't-care bits. --bsdl appends the IDCODE_REGISTER of
each BSDL file after the positional IDCODEs.

Examples:
  xvcplay verify-idcode 0x0362D093
  xvcplay verify-idcode 0x0362D093/0x0FFFFFFF 0x4BA00477
  xvcplay verify-idcode "XXXX 0011 0110 0010 1101 0000 1001 0011"
  xvcplay verify-idcode --bsdl xc7a35t_csg324.bsd`,
	RunE: runVerifyIDCode,
}

var bsdlFiles []string

func init() {
	rootCmd.AddCommand(verifyIDCodeCmd)

	verifyIDCodeCmd.Flags().StringSliceVarP(&bsdlFiles, "bsdl", "b", nil,
		"BSDL files whose IDCODE_REGISTER to expect")
}

func runVerifyIDCode(cmd *cobra.Command, args []string) error {
	expected := make([]chain.Expectation, 0, len(args))
	for _, arg := range args {
		exp, err := chain.ParseExpectation(arg)
		if err != nil {
			return err
		}
		expected = append(expected, exp)
	}
	devices, err := loadBSDL(bsdlFiles)
	if err != nil {
		return err
	}
	for _, d := range devices {
		exp, err := chain.ParseExpectation(d.IDCode)
		if err != nil {
			return fmt.Errorf("%s: %w", d.Entity, err)
		}
		expected = append(expected, exp)
	}
	if len(expected) == 0 {
		return fmt.Errorf("no IDCODEs given")
	}

	h, err := runRoutine(cmd.Context(), func(ctx context.Context, c *chain.Controller) error {
		return c.VerifyIDCodes(expected)
	})
	if err != nil {
		return err
	}

	verified := h.Devices()
	fmt.Printf("Verified %d device(s):\n", len(verified))
	for i, raw := range verified {
		fmt.Printf("  %d: %s (expected %s)\n", i, idcode.Describe(raw), expected[i])
	}
	return nil
}

func loadBSDL(paths []string) ([]*bsdl.Device, error) {
	devices := make([]*bsdl.Device, 0, len(paths))
	for _, path := range paths {
		d, err := bsdl.ParseFile(path)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, nil
}
