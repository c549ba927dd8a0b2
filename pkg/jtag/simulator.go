package jtag

import (
	"fmt"
	"sync"

	"github.com/OpenTraceLab/xvcplay/pkg/tap"
)

// SimDevice configures one device of a simulated chain.
type SimDevice struct {
	// IDCode is loaded into the data register after reset. Zero models a
	// device without an IDCODE register, which selects BYPASS on reset.
	IDCode uint32
	// IRLength defaults to 4 when zero.
	IRLength int
}

// Instruction opcodes understood by simulated devices. BYPASS is all ones
// for the device's IR length.
const (
	SimOpcodeIDCODE = 0x1
)

type simDevice struct {
	SimDevice
	ir      uint64
	irShift uint64
	dr      uint64
	drLen   int
}

func (d *simDevice) bypassOpcode() uint64 {
	return 1<<d.IRLength - 1
}

func (d *simDevice) reset() {
	d.ir = d.bypassOpcode()
	if d.IDCode != 0 {
		d.ir = SimOpcodeIDCODE
	}
}

func (d *simDevice) captureDR() {
	if d.ir == SimOpcodeIDCODE && d.IDCode != 0 {
		d.dr, d.drLen = uint64(d.IDCode), 32
		return
	}
	d.dr, d.drLen = 0, 1
}

// ChainSimulator is a bit-accurate model of a JTAG chain driven through the
// IEEE 1149.1 TAP controller. Devices[0] sits next to TDO, so its register
// is shifted out first; TDI feeds the last device.
type ChainSimulator struct {
	info    AdapterInfo
	devices []*simDevice
	tap     *tap.StateMachine
	speedHz int
	cycles  int

	mu sync.Mutex
}

// NewChainSimulator builds a chain of the given devices, starting in
// Test-Logic-Reset.
func NewChainSimulator(devices ...SimDevice) (*ChainSimulator, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("jtag: simulator needs at least one device")
	}
	sim := &ChainSimulator{
		info: AdapterInfo{
			Name:         "JTAG Chain Simulator",
			Vendor:       "OpenTraceLab",
			Model:        "Sim-1.0",
			MinFrequency: 100,
			MaxFrequency: 100_000_000,
			Notes:        fmt.Sprintf("%d simulated device(s)", len(devices)),
		},
		tap: tap.NewStateMachine(),
	}
	for _, def := range devices {
		if def.IRLength == 0 {
			def.IRLength = 4
		}
		if def.IRLength < 2 || def.IRLength > 32 {
			return nil, fmt.Errorf("jtag: simulated IR length %d out of range [2, 32]", def.IRLength)
		}
		dev := &simDevice{SimDevice: def}
		dev.reset()
		sim.devices = append(sim.devices, dev)
	}
	return sim, nil
}

// State reports the TAP state tracked by the simulator.
func (cs *ChainSimulator) State() tap.State {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.tap.State()
}

// Cycles reports how many TCK cycles have been simulated.
func (cs *ChainSimulator) Cycles() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.cycles
}

func (cs *ChainSimulator) Info() (AdapterInfo, error) {
	return cs.info, nil
}

func (cs *ChainSimulator) SetSpeed(hz int) error {
	if hz < cs.info.MinFrequency || hz > cs.info.MaxFrequency {
		return fmt.Errorf("jtag: frequency %d Hz out of range [%d, %d]",
			hz, cs.info.MinFrequency, cs.info.MaxFrequency)
	}
	cs.mu.Lock()
	cs.speedHz = hz
	cs.mu.Unlock()
	return nil
}

func (cs *ChainSimulator) Close() error {
	return nil
}

// Shift clocks bits cycles through the chain.
func (cs *ChainSimulator) Shift(tms, tdi []byte, bits int) ([]byte, error) {
	required, err := ValidateShiftBuffers(tms, tdi, bits)
	if err != nil {
		return nil, err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	tdo := make([]byte, required)
	for i := 0; i < bits; i++ {
		if cs.clock(bitAt(tms, i), bitAt(tdi, i)) {
			setBit(tdo, i)
		}
	}
	return tdo, nil
}

// clock performs one TCK cycle and returns the TDO level sampled during it.
// The action of the current state happens before the transition, matching
// the rising-edge behaviour of a real TAP.
func (cs *ChainSimulator) clock(tms, tdi bool) bool {
	cs.cycles++
	state := cs.tap.State()
	tdo := false

	switch state {
	case tap.StateTestLogicReset:
		for _, dev := range cs.devices {
			dev.reset()
		}
	case tap.StateCaptureDR:
		for _, dev := range cs.devices {
			dev.captureDR()
		}
	case tap.StateShiftDR:
		in := tdi
		for i := len(cs.devices) - 1; i >= 0; i-- {
			in = shiftRegister(&cs.devices[i].dr, cs.devices[i].drLen, in)
		}
		tdo = in
	case tap.StateCaptureIR:
		for _, dev := range cs.devices {
			dev.irShift = 0b01
		}
	case tap.StateShiftIR:
		in := tdi
		for i := len(cs.devices) - 1; i >= 0; i-- {
			in = shiftRegister(&cs.devices[i].irShift, cs.devices[i].IRLength, in)
		}
		tdo = in
	case tap.StateUpdateIR:
		for _, dev := range cs.devices {
			dev.ir = dev.irShift
		}
	}

	cs.tap.Clock(tms)
	return tdo
}

// shiftRegister moves in into the MSB of an n-bit register and returns the
// bit shifted out of the LSB.
func shiftRegister(reg *uint64, n int, in bool) bool {
	out := *reg&1 != 0
	*reg >>= 1
	if in {
		*reg |= 1 << (n - 1)
	}
	return out
}
