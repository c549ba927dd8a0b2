package scan

import (
	"fmt"
	"log/slog"
)

// Flush sends the accumulated planes to the agent and verifies the observed
// TDO. A batch is all-or-nothing: on full agreement the planes are cleared
// and the cursor rewinds; on mismatch or link failure the session latches
// and nothing is retried.
func (s *Session) Flush() Result {
	bits := s.planes.cur.Bits()
	if bits == 0 {
		return okResult
	}
	if s.Failed() {
		return s.alreadyFailed()
	}

	n := s.planes.cur.Bytes()
	s.log.Debug("sending batch", slog.Int("bits", bits), slog.Int("bytes", n))

	tdo := s.tdo[:n]
	clear(tdo)
	err := s.link.Shift(s.ctx, uint32(bits),
		s.planes.bytes(PlaneTMS, n), s.planes.bytes(PlaneTDI, n), tdo)
	if err != nil {
		s.log.Error("flush failed", slog.Int("bits", bits), slog.Any("error", err))
		return s.latch(connectivity(err))
	}
	s.stats.Flushes++
	s.stats.BitsSent += int64(bits)

	expected := s.planes.bytes(PlaneTDO, n)
	mask := s.planes.bytes(PlaneMask, n)
	for i := range n {
		s.stats.BytesCompared++
		if expected[i] != tdo[i]&mask[i] {
			mismatch := &MismatchError{
				Index:    i,
				Observed: tdo[i],
				Mask:     mask[i],
				Expected: expected[i],
			}
			s.log.Error("tdo check failed",
				slog.Int("i", i),
				slog.String("received", hexByte(tdo[i])),
				slog.String("mask", hexByte(mask[i])),
				slog.String("should", hexByte(expected[i])))
			return s.latch(Result{Outcome: VerificationMismatch, Err: mismatch})
		}
	}

	s.planes.clear()
	return okResult
}

func hexByte(b byte) string {
	return fmt.Sprintf("0x%02x", b)
}
