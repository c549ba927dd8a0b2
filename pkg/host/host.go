// Package host binds a scan session to the callback surface of a test-vector
// playback engine.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/OpenTraceLab/xvcplay/pkg/idcode"
	"github.com/OpenTraceLab/xvcplay/pkg/scan"
	"github.com/OpenTraceLab/xvcplay/pkg/tap"
)

// Verbosity levels gating diagnostic reports.
const (
	VerbosityQuiet  = 0
	VerbosityStatus = 1 // status messages
	VerbosityTrace  = 2 // status and tap-state transitions
)

// Clock applies a TCK frequency on the remote agent and returns the
// frequency actually in effect. *xvc.Client implements it.
type Clock interface {
	SetFrequency(ctx context.Context, hz int) (int, error)
}

// Host implements Callbacks over a scan session.
type Host struct {
	session *scan.Session
	source  *ByteSource
	clock   Clock
	log     *slog.Logger
	ctx     context.Context

	defaultVerbosity int
	verbosity        int
	devices          []uint32
}

var _ Callbacks = (*Host)(nil)

// Option configures a Host.
type Option func(*Host)

// WithSource supplies the vector stream served by GetByte.
func WithSource(r io.Reader) Option {
	return func(h *Host) {
		h.source = NewByteSource(r)
	}
}

// WithClock forwards SetFrequency requests to c.
func WithClock(c Clock) Option {
	return func(h *Host) {
		h.clock = c
	}
}

// WithLogger routes reports to l.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) {
		h.log = l
	}
}

// WithVerbosity sets the verbosity Setup restores.
func WithVerbosity(v int) Option {
	return func(h *Host) {
		h.defaultVerbosity = v
	}
}

// New creates a host driving session.
func New(session *scan.Session, opts ...Option) (*Host, error) {
	if session == nil {
		return nil, fmt.Errorf("host: nil session")
	}
	h := &Host{
		session: session,
		log:     slog.New(slog.DiscardHandler),
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.defaultVerbosity < VerbosityQuiet || h.defaultVerbosity > VerbosityTrace {
		return nil, fmt.Errorf("host: verbosity %d out of range 0..2", h.defaultVerbosity)
	}
	h.verbosity = h.defaultVerbosity
	return h, nil
}

// Session returns the underlying scan session.
func (h *Host) Session() *scan.Session {
	return h.session
}

// Devices returns the IDCODEs reported since Setup.
func (h *Host) Devices() []uint32 {
	return append([]uint32(nil), h.devices...)
}

// Verbosity returns the current report level.
func (h *Host) Verbosity() int {
	return h.verbosity
}

// SetVerbosity changes the report level until the next Setup.
func (h *Host) SetVerbosity(v int) {
	h.verbosity = v
}

// Run plays e against h: Setup, Play, then Shutdown to drain pending cycles.
// The engine's error wins over a shutdown failure. A latched session failure
// is returned even if the engine ignored it.
func (h *Host) Run(ctx context.Context, e Engine) error {
	h.ctx = ctx
	defer func() { h.ctx = context.Background() }()

	if err := h.Setup(); err != nil {
		return err
	}
	playErr := e.Play(ctx, h)
	shutdownErr := h.Shutdown()
	if playErr != nil {
		return playErr
	}
	if shutdownErr != nil {
		return shutdownErr
	}
	if err := h.session.Failure(); err != nil {
		return err
	}
	return nil
}

// Setup clears the session, its failure latch and the device list, and
// restores the default verbosity.
func (h *Host) Setup() error {
	h.session.Reset()
	h.verbosity = h.defaultVerbosity
	h.devices = nil
	return nil
}

// Shutdown drains pending cycles with a final flush.
func (h *Host) Shutdown() error {
	r := h.session.Flush()
	if !r.OK() && !errors.Is(r.Err, scan.ErrAlreadyFailed) {
		h.log.Error("final flush failed", slog.String("outcome", r.Outcome.String()), slog.Any("error", r.Err))
	}
	return r.Err
}

func (h *Host) PulseTCK(tms, tdi bool, tdo int, sync bool) error {
	return h.session.RecordCycle(scan.Cycle{
		TMS:     tms,
		TDI:     tdi,
		TDO:     tdo == 1,
		Compare: tdo != DontCare,
		Sync:    sync,
	}).Err
}

func (h *Host) Udelay(usecs int64, tms bool, cycles int64) error {
	h.log.Debug("udelay", slog.Int64("usecs", usecs), slog.Bool("tms", tms), slog.Int64("cycles", cycles))
	return h.session.Wait(tms, int(cycles)).Err
}

// GetByte returns io.EOF when no source was configured.
func (h *Host) GetByte() (byte, error) {
	if h.source == nil {
		return 0, io.EOF
	}
	return h.source.Next()
}

// SetFrequency is accepted and ignored without a Clock.
func (h *Host) SetFrequency(hz int) error {
	if h.clock == nil {
		h.log.Debug("set frequency ignored", slog.Int("hz", hz))
		return nil
	}
	actual, err := h.clock.SetFrequency(h.ctx, hz)
	if err != nil {
		return fmt.Errorf("host: set frequency %d Hz: %w", hz, err)
	}
	h.log.Debug("set frequency", slog.Int("hz", hz), slog.Int("actual_hz", actual))
	return nil
}

func (h *Host) ReportTapState(s tap.State) {
	if h.verbosity >= VerbosityTrace {
		h.log.Info("tap state", slog.String("state", s.String()), slog.String("svf", s.SVF()))
	}
}

func (h *Host) ReportDevice(raw uint32) {
	h.devices = append(h.devices, raw)
	id := idcode.ParseIDCode(raw)
	m, _ := idcode.LookupManufacturer(id.ManufacturerCode)
	attrs := []any{
		slog.String("idcode", fmt.Sprintf("0x%08x", id.Raw)),
		slog.String("revision", fmt.Sprintf("0x%01x", id.Version)),
		slog.String("part", fmt.Sprintf("0x%04x", id.PartNumber)),
		slog.String("manufacturer", fmt.Sprintf("0x%03x", id.ManufacturerCode)),
		slog.String("vendor", m.Name),
	}
	if dev, ok := idcode.LookupDevice(id); ok {
		attrs = append(attrs, slog.String("device", dev.Name))
	}
	h.log.Info("device", attrs...)
}

func (h *Host) ReportStatus(msg string) {
	if h.verbosity >= VerbosityStatus {
		h.log.Info("status", slog.String("msg", msg))
	}
}

func (h *Host) ReportError(file string, line int, msg string) {
	h.log.Error(msg, slog.String("file", file), slog.Int("line", line))
}
