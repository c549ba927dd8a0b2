package jtag

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// CMSIS-DAP command IDs
const (
	cmdInfo         = 0x00
	cmdConnect      = 0x02
	cmdDisconnect   = 0x03
	cmdSWJClock     = 0x11
	cmdJTAGSequence = 0x14
)

// DAP_Info IDs
const (
	infoVendor   = 0x01
	infoProduct  = 0x02
	infoSerial   = 0x03
	infoFirmware = 0x04
)

const (
	portJTAG = 2

	statusOK = 0x00

	jtagSeqTCKMask = 0x3F // TCK count, 0 means 64
	jtagSeqTMS     = 0x40
	jtagSeqTDO     = 0x80

	maxSequenceBits = 64
	maxSequences    = 255
)

// packetIO exchanges one command/response packet with a probe.
type packetIO interface {
	WriteRead(cmd []byte) ([]byte, error)
	PacketSize() int
	Close() error
}

// CMSISDAPAdapter drives a CMSIS-DAP probe in JTAG mode.
type CMSISDAPAdapter struct {
	io      packetIO
	info    AdapterInfo
	speedHz int

	mu sync.Mutex
}

// OpenCMSISDAP opens the first probe matching vid:pid, connects its JTAG
// port and sets a 1 MHz clock.
func OpenCMSISDAP(vid, pid uint16) (*CMSISDAPAdapter, error) {
	transport, err := openUSBTransport(vid, pid)
	if err != nil {
		return nil, err
	}
	adapter, err := newCMSISDAPAdapter(transport)
	if err != nil {
		transport.Close()
		return nil, err
	}
	return adapter, nil
}

func newCMSISDAPAdapter(io packetIO) (*CMSISDAPAdapter, error) {
	a := &CMSISDAPAdapter{io: io}
	if err := a.queryInfo(); err != nil {
		return nil, fmt.Errorf("failed to query device info: %w", err)
	}
	if err := a.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to JTAG: %w", err)
	}
	if err := a.SetSpeed(1_000_000); err != nil {
		return nil, fmt.Errorf("failed to set default speed: %w", err)
	}
	return a, nil
}

func (a *CMSISDAPAdapter) infoString(id byte) (string, error) {
	resp, err := a.io.WriteRead([]byte{cmdInfo, id})
	if err != nil {
		return "", err
	}
	if len(resp) < 2 || resp[0] != cmdInfo {
		return "", fmt.Errorf("cmsis-dap: malformed DAP_Info response")
	}
	length := int(resp[1])
	if len(resp) < 2+length {
		return "", fmt.Errorf("cmsis-dap: incomplete info string")
	}
	// Strings are NUL terminated on most firmware.
	s := resp[2 : 2+length]
	for len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	return string(s), nil
}

func (a *CMSISDAPAdapter) queryInfo() error {
	vendor, err := a.infoString(infoVendor)
	if err != nil {
		return err
	}
	product, _ := a.infoString(infoProduct)
	serial, _ := a.infoString(infoSerial)
	firmware, _ := a.infoString(infoFirmware)

	a.info = AdapterInfo{
		Name:         "CMSIS-DAP Probe",
		Vendor:       vendor,
		Model:        product,
		SerialNumber: serial,
		Firmware:     firmware,
		MinFrequency: 1_000,
		MaxFrequency: 10_000_000,
	}
	return nil
}

func (a *CMSISDAPAdapter) connect() error {
	resp, err := a.io.WriteRead([]byte{cmdConnect, portJTAG})
	if err != nil {
		return err
	}
	if len(resp) < 2 || resp[0] != cmdConnect {
		return fmt.Errorf("cmsis-dap: malformed DAP_Connect response")
	}
	if resp[1] != portJTAG {
		return fmt.Errorf("cmsis-dap: failed to connect to JTAG (got port %d)", resp[1])
	}
	return nil
}

// Info returns adapter capabilities.
func (a *CMSISDAPAdapter) Info() (AdapterInfo, error) {
	return a.info, nil
}

// SetSpeed sets the TCK frequency.
func (a *CMSISDAPAdapter) SetSpeed(hz int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if hz < a.info.MinFrequency || hz > a.info.MaxFrequency {
		return fmt.Errorf("frequency %d Hz out of range [%d, %d]",
			hz, a.info.MinFrequency, a.info.MaxFrequency)
	}
	cmd := binary.LittleEndian.AppendUint32([]byte{cmdSWJClock}, uint32(hz))
	resp, err := a.io.WriteRead(cmd)
	if err != nil {
		return fmt.Errorf("set speed failed: %w", err)
	}
	if err := checkStatus(resp, cmdSWJClock); err != nil {
		return err
	}
	a.speedHz = hz
	return nil
}

// Shift clocks bits cycles with per-bit TMS and captures TDO.
func (a *CMSISDAPAdapter) Shift(tms, tdi []byte, bits int) ([]byte, error) {
	required, err := ValidateShiftBuffers(tms, tdi, bits)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tdo := make([]byte, required)
	seqs := splitSequences(tms, bits)
	for len(seqs) > 0 {
		n := batchSize(seqs, a.io.PacketSize())
		if n == 0 {
			return nil, fmt.Errorf("cmsis-dap: packet size %d too small for a sequence", a.io.PacketSize())
		}
		if err := a.runSequences(seqs[:n], tdi, tdo); err != nil {
			return nil, err
		}
		seqs = seqs[n:]
	}
	return tdo, nil
}

// Close disconnects and releases resources.
func (a *CMSISDAPAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.io.WriteRead([]byte{cmdDisconnect})
	return a.io.Close()
}

// dapSequence is one DAP_JTAG_Sequence entry: a run of cycles at a
// constant TMS level.
type dapSequence struct {
	start int
	bits  int
	tms   bool
}

func (s dapSequence) bytes() int {
	return (s.bits + 7) / 8
}

func (s dapSequence) info() byte {
	info := byte(s.bits&jtagSeqTCKMask) | jtagSeqTDO
	if s.tms {
		info |= jtagSeqTMS
	}
	return info
}

// splitSequences groups consecutive cycles sharing a TMS level. CMSIS-DAP
// holds TMS constant within a sequence and caps it at 64 cycles.
func splitSequences(tms []byte, bits int) []dapSequence {
	var seqs []dapSequence
	for pos := 0; pos < bits; {
		level := bitAt(tms, pos)
		n := 1
		for pos+n < bits && n < maxSequenceBits && bitAt(tms, pos+n) == level {
			n++
		}
		seqs = append(seqs, dapSequence{start: pos, bits: n, tms: level})
		pos += n
	}
	return seqs
}

// batchSize returns how many leading sequences fit in one command and its
// response.
func batchSize(seqs []dapSequence, packetSize int) int {
	cmdLen, respLen := 2, 2
	n := 0
	for n < len(seqs) && n < maxSequences {
		b := seqs[n].bytes()
		if cmdLen+1+b > packetSize || respLen+b > packetSize {
			break
		}
		cmdLen += 1 + b
		respLen += b
		n++
	}
	return n
}

func encodeSequences(seqs []dapSequence, tdi []byte) []byte {
	cmd := []byte{cmdJTAGSequence, byte(len(seqs))}
	for _, seq := range seqs {
		cmd = append(cmd, seq.info())
		cmd = append(cmd, extractBits(tdi, seq.start, seq.bits)...)
	}
	return cmd
}

func (a *CMSISDAPAdapter) runSequences(seqs []dapSequence, tdi, tdo []byte) error {
	resp, err := a.io.WriteRead(encodeSequences(seqs, tdi))
	if err != nil {
		return fmt.Errorf("shift failed: %w", err)
	}
	if err := checkStatus(resp, cmdJTAGSequence); err != nil {
		return err
	}

	offset := 2
	for _, seq := range seqs {
		b := seq.bytes()
		if offset+b > len(resp) {
			return fmt.Errorf("cmsis-dap: incomplete TDO data")
		}
		insertBits(tdo, seq.start, resp[offset:offset+b], seq.bits)
		offset += b
	}
	return nil
}

func checkStatus(resp []byte, cmd byte) error {
	if len(resp) < 2 {
		return fmt.Errorf("cmsis-dap: response too short")
	}
	if resp[0] != cmd {
		return fmt.Errorf("cmsis-dap: invalid command ID 0x%02X, want 0x%02X", resp[0], cmd)
	}
	if resp[1] != statusOK {
		return fmt.Errorf("cmsis-dap: command 0x%02X failed with status 0x%02X", cmd, resp[1])
	}
	return nil
}

// extractBits copies n bits starting at bit start of src into a new
// LSB-first buffer.
func extractBits(src []byte, start, n int) []byte {
	out := make([]byte, (n+7)/8)
	for i := 0; i < n; i++ {
		if bitAt(src, start+i) {
			setBit(out, i)
		}
	}
	return out
}

// insertBits ORs n bits of src into dst at bit offset start.
func insertBits(dst []byte, start int, src []byte, n int) {
	for i := 0; i < n; i++ {
		if bitAt(src, i) {
			setBit(dst, start+i)
		}
	}
}
