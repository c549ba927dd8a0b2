package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"golang.org/x/net/nettest"

	"github.com/OpenTraceLab/xvcplay/internal/config"
	"github.com/OpenTraceLab/xvcplay/pkg/jtag"
	"github.com/OpenTraceLab/xvcplay/pkg/scan"
	"github.com/OpenTraceLab/xvcplay/pkg/xvc"
)

// startAgent serves a simulated chain and returns its address.
func startAgent(t *testing.T, opts []xvc.ServerOption, ids ...uint32) string {
	t.Helper()
	devices := make([]jtag.SimDevice, len(ids))
	for i, id := range ids {
		devices[i] = jtag.SimDevice{IDCode: id}
	}
	sim, err := jtag.NewChainSimulator(devices...)
	if err != nil {
		t.Fatalf("NewChainSimulator returned error: %v", err)
	}
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("NewLocalListener returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- xvc.NewServer(sim, opts...).Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

// execute runs the CLI with args and returns what it printed to stdout.
func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()

	// Reset flags to prevent accumulation between tests
	cfg = config.Default()
	configPath = ""
	idleCycles = 100
	adapterType = "simulator"
	listenAddr = "127.0.0.1:0"
	maxVector = xvc.DefaultMaxVectorBytes
	simIDCodes = []string{"0x0362D093"}
	simBSDL = nil
	bsdlFiles = nil
	endState = "IDLE"
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) { f.Changed = false })

	// Capture stdout
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	// Read in background to prevent pipe buffer from blocking
	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		buf.ReadFrom(r)
		close(done)
	}()

	if !slices.Contains(args, "--config") {
		args = append(args, "--config", filepath.Join(t.TempDir(), "none.toml"))
	}
	rootCmd.SetArgs(args)
	rootCmd.SetErr(io.Discard)
	err := rootCmd.ExecuteContext(ctx)

	// Restore stdout and wait for reader
	w.Close()
	os.Stdout = old
	<-done

	return buf.String(), err
}

const artixBSDL = `entity XC7A35T_CSG324 is
port (TCK: in bit; TDI: in bit; TDO: out bit; TMS: in bit);
use STD_1149_1_2001.all;
attribute INSTRUCTION_LENGTH of XC7A35T_CSG324 : entity is 6;
attribute INSTRUCTION_OPCODE of XC7A35T_CSG324 : entity is "IDCODE (001001)," & "BYPASS (111111)";
attribute IDCODE_REGISTER of XC7A35T_CSG324 : entity is
	"XXXX0011011000101101" & "00001001001" & "1";
end XC7A35T_CSG324;
`

func writeBSDL(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xc7a35t_csg324.bsd")
	if err := os.WriteFile(path, []byte(artixBSDL), 0o644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}
	return path
}

func TestCommandsE2E(t *testing.T) {
	addr := startAgent(t, nil, 0x1362D093, 0x41111043)
	swapped := startAgent(t, nil, 0x41111043, 0x1362D093)
	small := startAgent(t, []xvc.ServerOption{xvc.WithMaxVectorBytes(8)}, 0x4BA00477)
	bsd := writeBSDL(t)

	tests := []struct {
		name        string
		args        []string
		wantErr     error
		wantContain []string
	}{
		{
			name: "verify two devices",
			args: []string{"verify-idcode", "--addr", addr, "0x1362D093", "0x01111043/0x0FFFFFFF"},
			wantContain: []string{
				"Verified 2 device(s)",
				"idcode=0x1362d093",
				"XC7A35T",
				"0x01111043/0x0FFFFFFF",
			},
		},
		{
			name:    "verify mismatch",
			args:    []string{"verify-idcode", "--addr", addr, "0x0362D093", "0x41111043"},
			wantErr: scan.ErrVerification,
		},
		{
			name:        "verify with small buffer",
			args:        []string{"verify-idcode", "--addr", addr, "--capacity", "2", "-V", "2", "0x1362D093", "0x41111043"},
			wantContain: []string{"Verified 2 device(s)", "LFE5U-25F"},
		},
		{
			name:    "BSDL IDCODEs follow positional ones",
			args:    []string{"verify-idcode", "--addr", addr, "--bsdl", bsd, "0x41111043"},
			wantErr: scan.ErrVerification,
		},
		{
			name:        "verify from BSDL",
			args:        []string{"verify-idcode", "--addr", swapped, "0x41111043", "--bsdl", bsd},
			wantContain: []string{"Verified 2 device(s)", "XC7A35T", "0x0362D093/0x0FFFFFFF"},
		},
		{
			name:        "idle",
			args:        []string{"idle", "--addr", addr, "--cycles", "5000", "--tck-hz", "2000000"},
			wantContain: []string{"Clocked 5000 idle cycle(s)"},
		},
		{
			name:        "idle clamps capacity to agent vector length",
			args:        []string{"idle", "--addr", small, "-n", "300"},
			wantContain: []string{"Clocked 300 idle cycle(s)"},
		},
		{
			name:        "reset",
			args:        []string{"reset", "--addr", addr, "--io-timeout", "5s"},
			wantContain: []string{"TAP reset, now in RunTestIdle"},
		},
		{
			name:        "reset to DRPAUSE",
			args:        []string{"reset", "--addr", addr, "--end-state", "drpause"},
			wantContain: []string{"now in PauseDR"},
		},
		{
			name:    "reset to unstable state",
			args:    []string{"reset", "--addr", addr, "--end-state", "DRSHIFT"},
			wantErr: errAny,
		},
		{
			name: "info",
			args: []string{"info", "--addr", addr, "--tck-hz", "1000000"},
			wantContain: []string{
				"xvcServer_v1.0",
				"2048 bytes (8192 bits per shift)",
				"1000 ns (1000000 Hz)",
			},
		},
		{
			name:    "missing idcode argument",
			args:    []string{"verify-idcode", "--addr", addr},
			wantErr: errAny,
		},
		{
			name:    "invalid verbosity",
			args:    []string{"reset", "--addr", addr, "--verbosity", "5"},
			wantErr: errAny,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := execute(t, context.Background(), tt.args...)

			if tt.wantErr != nil {
				if err == nil {
					t.Fatalf("Expected error but got none\nOutput: %s", output)
				}
				if tt.wantErr != errAny && !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v\nOutput: %s", err, output)
			}
			for _, want := range tt.wantContain {
				if !strings.Contains(output, want) {
					t.Errorf("Output missing expected string: %q\nGot:\n%s", want, output)
				}
			}
		})
	}
}

var errAny = errors.New("any error")

func TestConfigSourcesE2E(t *testing.T) {
	addr := startAgent(t, nil, 0x0362D093)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := fmt.Sprintf("addr = %q\ntck-hz = 2000000\n", addr)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}

	output, err := execute(t, context.Background(), "info", "--config", path)
	if err != nil {
		t.Fatalf("info returned error: %v", err)
	}
	if !strings.Contains(output, "500 ns (2000000 Hz)") {
		t.Fatalf("config file TCK not applied:\n%s", output)
	}

	// The environment beats the file.
	t.Setenv("XVCPLAY_TCK_HZ", "4000000")
	output, err = execute(t, context.Background(), "info", "--config", path)
	if err != nil {
		t.Fatalf("info returned error: %v", err)
	}
	if !strings.Contains(output, "250 ns (4000000 Hz)") {
		t.Fatalf("environment TCK not applied:\n%s", output)
	}
}

func TestUnreachableAgentE2E(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("NewLocalListener returned error: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = execute(t, context.Background(), "reset", "--addr", addr)
	if !errors.Is(err, scan.ErrConnectivity) {
		t.Fatalf("err = %v, want connectivity error", err)
	}
}

func TestServeStopsWithContextE2E(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	output, err := execute(t, ctx, "serve", "--sim-ids", "0x0362D093,0", "--listen", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("serve returned error: %v", err)
	}
	if !strings.Contains(output, "Serving JTAG Chain Simulator") {
		t.Fatalf("unexpected output:\n%s", output)
	}

	if _, err := execute(t, ctx, "serve", "--adapter", "bogus"); err == nil {
		t.Fatalf("expected error for unknown adapter")
	}
	if _, err := execute(t, ctx, "serve", "--sim-ids", "nothex"); err == nil {
		t.Fatalf("expected error for malformed --sim-ids")
	}

	output, err = execute(t, ctx, "serve", "--sim-bsdl", writeBSDL(t), "--listen", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("serve with --sim-bsdl returned error: %v\nOutput: %s", err, output)
	}
}
