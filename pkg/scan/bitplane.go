package scan

import (
	"fmt"
	"math/bits"
)

// Plane selects one of the four parallel bit-streams recorded per TCK cycle.
type Plane uint8

const (
	PlaneTMS Plane = iota
	PlaneTDI
	PlaneTDO // expected TDO
	PlaneMask
	numPlanes
)

var planeNames = [numPlanes]string{
	PlaneTMS:  "tms",
	PlaneTDI:  "tdi",
	PlaneTDO:  "tdo",
	PlaneMask: "mask",
}

func (p Plane) String() string {
	if p < numPlanes {
		return planeNames[p]
	}
	return fmt.Sprintf("Plane(%d)", p)
}

// Cursor addresses the next bit to be written. It is shared by all planes.
// Bits are packed LSB first: bit 0 of byte 0 holds the first recorded cycle.
type Cursor struct {
	Byte int
	Bit  byte
}

var origin = Cursor{Byte: 0, Bit: 0x01}

// Bits returns the number of cycles recorded before the cursor.
func (c Cursor) Bits() int {
	return c.Byte*8 + bits.TrailingZeros8(c.Bit)
}

// Bytes returns the number of bytes needed to carry Bits().
func (c Cursor) Bytes() int {
	return (c.Bits() + 7) / 8
}

// planeSet is the fixed-capacity storage behind a session.
type planeSet struct {
	buf [numPlanes][]byte
	cur Cursor
}

func newPlaneSet(capacity int) planeSet {
	var p planeSet
	for i := range p.buf {
		p.buf[i] = make([]byte, capacity)
	}
	p.cur = origin
	return p
}

func (p *planeSet) capacity() int {
	return len(p.buf[PlaneTMS])
}

// set marks the current cycle's bit in plane pl. Planes start zeroed, so
// recording a zero needs no write.
func (p *planeSet) set(pl Plane) {
	p.buf[pl][p.cur.Byte] |= p.cur.Bit
}

// step moves the cursor one bit forward and reports whether the planes are
// now full.
func (p *planeSet) step() bool {
	p.cur.Bit <<= 1
	if p.cur.Bit == 0 {
		p.cur.Bit = 0x01
		p.cur.Byte++
	}
	return p.cur.Byte == p.capacity()
}

func (p *planeSet) clear() {
	for i := range p.buf {
		clear(p.buf[i])
	}
	p.cur = origin
}

func (p *planeSet) bytes(pl Plane, n int) []byte {
	return p.buf[pl][:n]
}
