package cmd

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/xvcplay/pkg/jtag"
	"github.com/OpenTraceLab/xvcplay/pkg/xvc"
)

var (
	adapterType  string
	listenAddr   string
	maxVector    int
	simIDCodes   []string // For simulator: IDCODEs of the simulated chain
	simBSDL      []string // For simulator: BSDL files appended to the chain
	probeVID     uint16
	probePID     uint16
	adapterSpeed int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an XVC agent backed by a local adapter",
	Long: `Expose a JTAG adapter as a Xilinx Virtual Cable agent. The simulator adapter
models a TAP-accurate chain whose devices answer with the given IDCODEs, so the
host commands can be exercised without hardware.

Examples:
  # Simulated two-device chain on the default port
  xvcplay serve --adapter simulator --sim-ids 0x0362D093,0x41111043

  # Raspberry Pi Debug Probe (CMSIS-DAP) on all interfaces
  xvcplay serve --adapter cmsisdap --listen :2542`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&adapterType, "adapter", "a", "simulator",
		"JTAG adapter type (simulator, cmsisdap)")
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", fmt.Sprintf("127.0.0.1:%d", xvc.DefaultPort),
		"address to accept XVC connections on")
	serveCmd.Flags().IntVar(&maxVector, "max-vector", xvc.DefaultMaxVectorBytes,
		"advertised vector length in bytes (TMS plus TDI)")
	serveCmd.Flags().StringSliceVar(&simIDCodes, "sim-ids", []string{"0x0362D093"},
		"simulator: IDCODEs of the chain, nearest TDO first (0 for a BYPASS-only device)")
	serveCmd.Flags().StringSliceVar(&simBSDL, "sim-bsdl", nil,
		"simulator: BSDL files describing further devices (IDCODE and IR length)")
	serveCmd.Flags().Uint16Var(&probeVID, "vid", jtag.VendorIDRaspberryPi, "cmsisdap: USB vendor ID")
	serveCmd.Flags().Uint16Var(&probePID, "pid", jtag.ProductIDCMSISDAP, "cmsisdap: USB product ID")
	serveCmd.Flags().IntVar(&adapterSpeed, "speed", 1000000, "initial TCK speed in Hz")
}

func runServe(cmd *cobra.Command, args []string) error {
	if maxVector < 2 {
		return fmt.Errorf("--max-vector must be at least 2, got %d", maxVector)
	}

	adapter, err := createAdapter(adapterType)
	if err != nil {
		return fmt.Errorf("failed to create adapter: %w", err)
	}
	defer adapter.Close()

	if err := adapter.SetSpeed(adapterSpeed); err != nil {
		return fmt.Errorf("failed to set speed: %w", err)
	}
	info, err := adapter.Info()
	if err != nil {
		return fmt.Errorf("failed to get adapter info: %w", err)
	}

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	fmt.Printf("Serving %s (%s %s) on %s\n", info.Name, info.Vendor, info.Model, ln.Addr())

	server := xvc.NewServer(adapter,
		xvc.WithMaxVectorBytes(maxVector),
		xvc.WithServerLogger(logger.With(slog.String("adapter", adapterType))))
	return server.Serve(cmd.Context(), ln)
}

// createAdapter creates the appropriate JTAG adapter based on type
func createAdapter(adapterType string) (jtag.Adapter, error) {
	switch adapterType {
	case "simulator", "sim":
		ids, err := parseIDCodes(simIDCodes)
		if err != nil {
			return nil, fmt.Errorf("invalid --sim-ids: %w", err)
		}
		devices := make([]jtag.SimDevice, 0, len(ids)+len(simBSDL))
		for _, id := range ids {
			devices = append(devices, jtag.SimDevice{IDCode: id})
		}
		described, err := loadBSDL(simBSDL)
		if err != nil {
			return nil, err
		}
		for _, d := range described {
			id, _, err := d.IDCodePattern()
			if err != nil {
				return nil, err
			}
			devices = append(devices, jtag.SimDevice{IDCode: id, IRLength: d.InstructionLength})
		}
		return jtag.NewChainSimulator(devices...)
	case "cmsisdap", "cmsis-dap":
		return jtag.OpenCMSISDAP(probeVID, probePID)
	default:
		return nil, fmt.Errorf("unknown adapter type %q", adapterType)
	}
}

func parseIDCodes(values []string) ([]uint32, error) {
	ids := make([]uint32, 0, len(values))
	for _, v := range values {
		v = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(v), "0x"), "0X")
		id, err := strconv.ParseUint(v, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", v, err)
		}
		ids = append(ids, uint32(id))
	}
	return ids, nil
}
