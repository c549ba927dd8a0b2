package jtag

import (
	"errors"
	"fmt"
)

// AdapterInfo describes capabilities reported by a JTAG adapter implementation.
type AdapterInfo struct {
	Name         string
	Vendor       string
	Model        string
	SerialNumber string
	Firmware     string
	MinFrequency int // Hertz
	MaxFrequency int // Hertz
	Notes        string
}

// Adapter abstracts a physical or virtual JTAG Test Access Port adapter as
// seen by an XVC agent: raw TMS/TDI vectors in, TDO vector out. Vectors are
// packed LSB first, bit 0 of byte 0 being the first TCK cycle.
type Adapter interface {
	Info() (AdapterInfo, error)
	Shift(tms, tdi []byte, bits int) (tdo []byte, err error)
	SetSpeed(hz int) error
	Close() error
}

// ErrNotImplemented lets backends signal that a requested capability is not
// available without relying on fmt.Errorf each time.
var ErrNotImplemented = errors.New("jtag: not implemented")

// ValidateShiftBuffers ensures TMS/TDI cover bits and returns the number of
// bytes required to hold the bit length.
func ValidateShiftBuffers(tms, tdi []byte, bits int) (int, error) {
	if bits <= 0 {
		return 0, fmt.Errorf("jtag: bits must be positive, got %d", bits)
	}
	required := (bits + 7) / 8
	if len(tms) < required {
		return 0, fmt.Errorf("jtag: tms buffer too short, need %d bytes", required)
	}
	if len(tdi) < required {
		return 0, fmt.Errorf("jtag: tdi buffer too short, need %d bytes", required)
	}
	return required, nil
}

func bitAt(buf []byte, i int) bool {
	return buf[i/8]&(1<<(i%8)) != 0
}

func setBit(buf []byte, i int) {
	buf[i/8] |= 1 << (i % 8)
}
