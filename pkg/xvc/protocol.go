// Package xvc implements the Xilinx Virtual Cable 1.0 protocol: a client
// that carries scan batches to a remote agent and a server that exposes a
// local JTAG adapter as such an agent.
//
// All multi-byte fields are little-endian. Within the TMS, TDI and TDO
// vectors bit 0 of byte 0 is the first TCK cycle.
package xvc

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// DefaultPort is the conventional XVC TCP port.
const DefaultPort = 2542

const (
	cmdShift   = "shift:"
	cmdGetInfo = "getinfo:"
	cmdSetTCK  = "settck:"

	infoPrefix = "xvcServer_v1.0:"

	// maxCommandLen bounds the command tag read by the server.
	maxCommandLen = len(cmdGetInfo)
)

// Info is the parsed getinfo: reply.
type Info struct {
	Version string
	// MaxVectorBytes is the largest shift payload (TMS plus TDI bytes) the
	// agent accepts in one request.
	MaxVectorBytes int
}

// MaxShiftBits returns the largest bit count a single shift request may carry.
func (i Info) MaxShiftBits() int {
	return i.MaxVectorBytes / 2 * 8
}

func (i Info) String() string {
	return fmt.Sprintf("%s%d", i.Version, i.MaxVectorBytes)
}

// ParseInfo decodes a getinfo: reply such as "xvcServer_v1.0:2048\n".
func ParseInfo(line string) (Info, error) {
	line = strings.TrimRight(line, "\r\n")
	idx := strings.LastIndexByte(line, ':')
	if idx < 0 || !strings.HasPrefix(line, "xvcServer_v") {
		return Info{}, fmt.Errorf("xvc: malformed info reply %q", line)
	}
	n, err := strconv.Atoi(line[idx+1:])
	if err != nil || n <= 0 {
		return Info{}, fmt.Errorf("xvc: malformed vector length in %q", line)
	}
	return Info{Version: line[:idx+1], MaxVectorBytes: n}, nil
}

// ShiftBytes returns the vector length for bits cycles.
func ShiftBytes(bits uint32) int {
	return int((uint64(bits) + 7) / 8)
}

// AppendShift appends a shift: request carrying bits cycles to dst.
func AppendShift(dst []byte, bits uint32, tms, tdi []byte) []byte {
	dst = append(dst, cmdShift...)
	dst = binary.LittleEndian.AppendUint32(dst, bits)
	dst = append(dst, tms...)
	return append(dst, tdi...)
}

// AppendSetTCK appends a settck: request for the given TCK period.
func AppendSetTCK(dst []byte, periodNs uint32) []byte {
	dst = append(dst, cmdSetTCK...)
	return binary.LittleEndian.AppendUint32(dst, periodNs)
}

// PeriodFromHz converts a TCK frequency into an XVC period in nanoseconds.
func PeriodFromHz(hz int) (uint32, error) {
	if hz <= 0 || hz > 1_000_000_000 {
		return 0, fmt.Errorf("xvc: invalid TCK frequency %dHz", hz)
	}
	return uint32(1_000_000_000 / hz), nil
}

// HzFromPeriod converts an XVC period back into a frequency.
func HzFromPeriod(periodNs uint32) int {
	if periodNs == 0 {
		return 0
	}
	return int(1_000_000_000 / periodNs)
}
