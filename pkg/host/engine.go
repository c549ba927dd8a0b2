package host

import (
	"context"

	"github.com/OpenTraceLab/xvcplay/pkg/tap"
)

// DontCare is the PulseTCK tdo value for a cycle whose scan-out is not
// checked.
const DontCare = -1

// Callbacks is the operation set a playback engine drives. Calls are made
// sequentially from a single goroutine.
type Callbacks interface {
	Setup() error
	Shutdown() error

	// PulseTCK records one clock cycle. tdo is 0 or 1 to check the scan-out
	// bit, or DontCare. sync requests an immediate flush.
	PulseTCK(tms, tdi bool, tdo int, sync bool) error
	// Udelay emulates a run-test wait as cycles idle pulses followed by a
	// flush. usecs is informational.
	Udelay(usecs int64, tms bool, cycles int64) error
	GetByte() (byte, error)
	SetFrequency(hz int) error

	ReportTapState(s tap.State)
	ReportDevice(idcode uint32)
	ReportStatus(msg string)
	ReportError(file string, line int, msg string)
}

// Engine plays a test-vector stream against a Callbacks implementation.
type Engine interface {
	Play(ctx context.Context, cb Callbacks) error
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, cb Callbacks) error

// Play calls f.
func (f EngineFunc) Play(ctx context.Context, cb Callbacks) error {
	return f(ctx, cb)
}
