package scan

// Cycle describes one TCK pulse.
type Cycle struct {
	TMS bool
	TDI bool
	// TDO is the expected scan-out bit. It is ignored unless Compare is set.
	TDO     bool
	Compare bool
	// Sync requests a flush once the cycle is recorded.
	Sync bool
}

// RecordCycle appends one cycle across all planes. A full buffer is flushed
// automatically; when Sync is set and no automatic flush happened, an
// explicit flush follows.
func (s *Session) RecordCycle(c Cycle) Result {
	if s.Failed() {
		return s.alreadyFailed()
	}

	if c.TMS {
		s.planes.set(PlaneTMS)
	}
	if c.TDI {
		s.planes.set(PlaneTDI)
	}
	if c.Compare {
		if c.TDO {
			s.planes.set(PlaneTDO)
		}
		s.planes.set(PlaneMask)
	}

	flushed, r := s.advance()
	if !r.OK() {
		return r
	}
	if c.Sync && !flushed {
		return s.Flush()
	}
	return okResult
}

// advance moves the shared cursor forward, flushing when the planes fill up.
func (s *Session) advance() (bool, Result) {
	if !s.planes.step() {
		return false, okResult
	}
	s.stats.AutoFlushes++
	r := s.Flush()
	if r.OK() && s.planes.cur.Byte >= s.planes.capacity() {
		panic("scan: cursor past capacity after successful flush")
	}
	return true, r
}
