package scan

// Wait emulates a run-test delay as cycles idle TCK pulses with TMS held at
// tms and no TDO comparison. The agent has no wall-clock delay primitive, so
// the wait always ends with a flush, even for zero cycles; that flush is the
// synchronization point the agent can rely on.
func (s *Session) Wait(tms bool, cycles int) Result {
	var first Result
	for i := 0; i < cycles; i++ {
		if r := s.RecordCycle(Cycle{TMS: tms}); !r.OK() {
			first = r
			break
		}
	}
	r := s.Flush()
	if !first.OK() {
		return first
	}
	return r
}
