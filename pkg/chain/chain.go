// Package chain runs built-in scan routines through a playback host: TAP
// reset, IDCODE verification and idle clocking. They stand in for a vector
// file when exercising an agent.
package chain

import (
	"context"
	"fmt"

	"github.com/OpenTraceLab/xvcplay/pkg/host"
	"github.com/OpenTraceLab/xvcplay/pkg/tap"
)

// Driver is the part of host.Callbacks the routines use.
type Driver interface {
	PulseTCK(tms, tdi bool, tdo int, sync bool) error
	Udelay(usecs int64, tms bool, cycles int64) error
	ReportTapState(s tap.State)
	ReportDevice(idcode uint32)
	ReportStatus(msg string)
}

// Controller tracks the TAP state while clocking cycles into a Driver.
type Controller struct {
	drv Driver
	tap *tap.StateMachine
}

// NewController assumes the TAP starts in Test-Logic-Reset; call Reset to
// make that true.
func NewController(drv Driver) *Controller {
	return &Controller{drv: drv, tap: tap.NewStateMachine()}
}

// State reports the tracked TAP state.
func (c *Controller) State() tap.State {
	return c.tap.State()
}

// Reset clocks five TMS=1 cycles and parks the TAP in Run-Test/Idle.
func (c *Controller) Reset() error {
	c.drv.ReportStatus("reset TAP")
	if err := c.apply(c.tap.Reset()); err != nil {
		return err
	}
	if err := c.goTo(tap.StateRunTestIdle); err != nil {
		return err
	}
	return c.drv.Udelay(0, false, 0)
}

// VerifyIDCodes resets the chain so every device selects its IDCODE (or
// BYPASS) register and checks the scan-out against expected, ordered from
// the device nearest TDO. Verified devices are reported once the batch has
// been flushed.
func (c *Controller) VerifyIDCodes(expected []Expectation) error {
	if len(expected) == 0 {
		return fmt.Errorf("chain: no IDCODEs to verify")
	}
	c.drv.ReportStatus(fmt.Sprintf("verify %d IDCODE(s)", len(expected)))
	if err := c.apply(c.tap.Reset()); err != nil {
		return err
	}
	if err := c.goTo(tap.StateShiftDR); err != nil {
		return err
	}

	for i, exp := range expected {
		mask := exp.mask()
		for bit := 0; bit < 32; bit++ {
			tdo := host.DontCare
			if mask>>bit&1 == 1 {
				tdo = int(exp.IDCode >> bit & 1)
			}
			last := i == len(expected)-1 && bit == 31
			if err := c.clock(last, false, tdo); err != nil {
				return err
			}
		}
	}

	if err := c.goTo(tap.StateRunTestIdle); err != nil {
		return err
	}
	if err := c.drv.Udelay(0, false, 0); err != nil {
		return err
	}
	for _, exp := range expected {
		c.drv.ReportDevice(exp.IDCode)
	}
	return nil
}

// Park moves the TAP to a stable state and flushes.
func (c *Controller) Park(target tap.State) error {
	if !target.IsStable() {
		return fmt.Errorf("chain: %s is not a stable state", target)
	}
	if err := c.goTo(target); err != nil {
		return err
	}
	return c.drv.Udelay(0, false, 0)
}

// Idle clocks cycles TCKs in Run-Test/Idle and flushes.
func (c *Controller) Idle(cycles int) error {
	if cycles < 0 {
		return fmt.Errorf("chain: negative idle count %d", cycles)
	}
	if err := c.goTo(tap.StateRunTestIdle); err != nil {
		return err
	}
	return c.drv.Udelay(0, false, int64(cycles))
}

func (c *Controller) goTo(target tap.State) error {
	seq, err := c.tap.GoTo(target)
	if err != nil {
		return err
	}
	return c.apply(seq)
}

// apply clocks a sequence the state machine has already walked.
func (c *Controller) apply(seq tap.Sequence) error {
	for i, tms := range seq.TMS {
		if err := c.drv.PulseTCK(tms, false, host.DontCare, false); err != nil {
			return err
		}
		if seq.States[i+1] != seq.States[i] {
			c.drv.ReportTapState(seq.States[i+1])
		}
	}
	return nil
}

func (c *Controller) clock(tms, tdi bool, tdo int) error {
	if err := c.drv.PulseTCK(tms, tdi, tdo, false); err != nil {
		return err
	}
	prev := c.tap.State()
	if next := c.tap.Clock(tms); next != prev {
		c.drv.ReportTapState(next)
	}
	return nil
}

// Routine is a script over a Controller. It implements host.Engine.
type Routine func(ctx context.Context, c *Controller) error

// Play runs r with a fresh Controller bound to cb.
func (r Routine) Play(ctx context.Context, cb host.Callbacks) error {
	return r(ctx, NewController(cb))
}
