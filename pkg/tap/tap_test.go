package tap

import "testing"

func TestNextStateTable(t *testing.T) {
	tests := []struct {
		from State
		tms  bool
		want State
	}{
		{StateTestLogicReset, false, StateRunTestIdle},
		{StateTestLogicReset, true, StateTestLogicReset},
		{StateRunTestIdle, true, StateSelectDRScan},
		{StateSelectDRScan, false, StateCaptureDR},
		{StateShiftDR, true, StateExit1DR},
		{StateExit2DR, false, StateShiftDR},
		{StateUpdateDR, false, StateRunTestIdle},
		{StateSelectIRScan, true, StateTestLogicReset},
		{StateCaptureIR, false, StateShiftIR},
		{StatePauseIR, true, StateExit2IR},
		{StateExit2IR, true, StateUpdateIR},
	}
	for _, tt := range tests {
		if got := NextState(tt.from, tt.tms); got != tt.want {
			t.Fatalf("NextState(%s, %v) = %s, want %s", tt.from, tt.tms, got, tt.want)
		}
	}
}

func TestResetFromEveryState(t *testing.T) {
	for s := State(0); s < numStates; s++ {
		m := &StateMachine{state: s}
		seq := m.Reset()
		if m.State() != StateTestLogicReset {
			t.Fatalf("Reset from %s ended in %s", s, m.State())
		}
		if len(seq.TMS) != 5 || len(seq.States) != 6 || seq.States[0] != s {
			t.Fatalf("Reset from %s: sequence %+v", s, seq)
		}
	}
}

func TestGoTo(t *testing.T) {
	tests := []struct {
		from, to State
		tms      []bool
	}{
		{StateRunTestIdle, StateShiftIR, []bool{true, true, false, false}},
		{StateTestLogicReset, StateShiftDR, []bool{false, true, false, false}},
		{StateShiftDR, StateRunTestIdle, []bool{true, true, false}},
		{StateExit1DR, StatePauseDR, []bool{false}},
		{StatePauseIR, StatePauseIR, nil},
	}
	for _, tt := range tests {
		m := &StateMachine{state: tt.from}
		seq, err := m.GoTo(tt.to)
		if err != nil {
			t.Fatalf("GoTo(%s -> %s) returned error: %v", tt.from, tt.to, err)
		}
		if len(seq.TMS) != len(tt.tms) {
			t.Fatalf("GoTo(%s -> %s) TMS = %v, want %v", tt.from, tt.to, seq.TMS, tt.tms)
		}
		for i := range tt.tms {
			if seq.TMS[i] != tt.tms[i] {
				t.Fatalf("GoTo(%s -> %s) TMS = %v, want %v", tt.from, tt.to, seq.TMS, tt.tms)
			}
		}
		// States must replay the TMS pattern.
		s := tt.from
		for i, tms := range seq.TMS {
			if seq.States[i] != s {
				t.Fatalf("GoTo(%s -> %s) States[%d] = %s, want %s", tt.from, tt.to, i, seq.States[i], s)
			}
			s = NextState(s, tms)
		}
		if s != tt.to || seq.States[len(seq.States)-1] != tt.to || m.State() != tt.to {
			t.Fatalf("GoTo(%s -> %s) ended in %s", tt.from, tt.to, m.State())
		}
	}

	m := NewStateMachine()
	if _, err := m.GoTo(numStates); err == nil {
		t.Fatalf("expected error for invalid target")
	}
}

func TestParseState(t *testing.T) {
	cases := map[string]State{
		"RunTestIdle":    StateRunTestIdle,
		"Run-Test/Idle":  StateRunTestIdle,
		"IDLE":           StateRunTestIdle,
		"reset":          StateTestLogicReset,
		"Shift-DR":       StateShiftDR,
		"DRSHIFT":        StateShiftDR,
		"irpause":        StatePauseIR,
		"update_ir":      StateUpdateIR,
		"Select-IR-Scan": StateSelectIRScan,
	}
	for name, want := range cases {
		got, err := ParseState(name)
		if err != nil {
			t.Fatalf("ParseState(%q) returned error: %v", name, err)
		}
		if got != want {
			t.Fatalf("ParseState(%q) = %s, want %s", name, got, want)
		}
	}

	if _, err := ParseState("Shift-XR"); err == nil {
		t.Fatalf("expected error for unknown state")
	}
}

func TestStateNames(t *testing.T) {
	for s := State(0); s < numStates; s++ {
		got, err := ParseState(s.SVF())
		if err != nil || got != s {
			t.Fatalf("ParseState(%q) = %s, %v; want %s", s.SVF(), got, err, s)
		}
	}
	if got := State(42).String(); got != "State(42)" {
		t.Fatalf("String() = %q, want State(42)", got)
	}

	stable := map[State]bool{
		StateTestLogicReset: true, StateRunTestIdle: true, StatePauseDR: true, StatePauseIR: true,
	}
	for s := State(0); s < numStates; s++ {
		if s.IsStable() != stable[s] {
			t.Fatalf("%s.IsStable() = %v", s, s.IsStable())
		}
	}
}
