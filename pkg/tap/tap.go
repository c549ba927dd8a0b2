// Package tap models the IEEE 1149.1 TAP controller: the 16-state diagram
// driven by TMS on each rising TCK edge.
package tap

import (
	"fmt"
	"strings"
)

// State is one of the 16 TAP controller states.
type State uint8

const (
	StateTestLogicReset State = iota
	StateRunTestIdle
	StateSelectDRScan
	StateCaptureDR
	StateShiftDR
	StateExit1DR
	StatePauseDR
	StateExit2DR
	StateUpdateDR
	StateSelectIRScan
	StateCaptureIR
	StateShiftIR
	StateExit1IR
	StatePauseIR
	StateExit2IR
	StateUpdateIR

	numStates
)

// state -> {next on TMS=0, next on TMS=1}
var diagram = [numStates][2]State{
	StateTestLogicReset: {StateRunTestIdle, StateTestLogicReset},
	StateRunTestIdle:    {StateRunTestIdle, StateSelectDRScan},
	StateSelectDRScan:   {StateCaptureDR, StateSelectIRScan},
	StateCaptureDR:      {StateShiftDR, StateExit1DR},
	StateShiftDR:        {StateShiftDR, StateExit1DR},
	StateExit1DR:        {StatePauseDR, StateUpdateDR},
	StatePauseDR:        {StatePauseDR, StateExit2DR},
	StateExit2DR:        {StateShiftDR, StateUpdateDR},
	StateUpdateDR:       {StateRunTestIdle, StateSelectDRScan},
	StateSelectIRScan:   {StateCaptureIR, StateTestLogicReset},
	StateCaptureIR:      {StateShiftIR, StateExit1IR},
	StateShiftIR:        {StateShiftIR, StateExit1IR},
	StateExit1IR:        {StatePauseIR, StateUpdateIR},
	StatePauseIR:        {StatePauseIR, StateExit2IR},
	StateExit2IR:        {StateShiftIR, StateUpdateIR},
	StateUpdateIR:       {StateRunTestIdle, StateSelectDRScan},
}

var names = [numStates]string{
	"TestLogicReset", "RunTestIdle",
	"SelectDRScan", "CaptureDR", "ShiftDR", "Exit1DR", "PauseDR", "Exit2DR", "UpdateDR",
	"SelectIRScan", "CaptureIR", "ShiftIR", "Exit1IR", "PauseIR", "Exit2IR", "UpdateIR",
}

// svfNames are the SVF spellings of the states, in State order.
var svfNames = [numStates]string{
	"RESET", "IDLE",
	"DRSELECT", "DRCAPTURE", "DRSHIFT", "DREXIT1", "DRPAUSE", "DREXIT2", "DRUPDATE",
	"IRSELECT", "IRCAPTURE", "IRSHIFT", "IREXIT1", "IRPAUSE", "IREXIT2", "IRUPDATE",
}

func (s State) valid() bool { return s < numStates }

func (s State) String() string {
	if !s.valid() {
		return fmt.Sprintf("State(%d)", s)
	}
	return names[s]
}

// SVF returns the SVF name of s (IDLE, DRPAUSE, ...).
func (s State) SVF() string {
	if !s.valid() {
		return s.String()
	}
	return svfNames[s]
}

// IsStable reports whether s is one of the states a scan may end in: the
// reset, idle and pause states.
func (s State) IsStable() bool {
	switch s {
	case StateTestLogicReset, StateRunTestIdle, StatePauseDR, StatePauseIR:
		return true
	}
	return false
}

// ParseState resolves a state name case-insensitively. Both the names used by
// String and the SVF spellings (RESET, IDLE, DRSHIFT, IRPAUSE, ...) are
// accepted; dashes, slashes, underscores and spaces are ignored.
func ParseState(name string) (State, error) {
	key := strings.ToUpper(strings.NewReplacer("-", "", "_", "", "/", "", " ", "").Replace(name))
	for s := State(0); s < numStates; s++ {
		if key == strings.ToUpper(names[s]) || key == svfNames[s] {
			return s, nil
		}
	}
	return 0, fmt.Errorf("tap: unknown state %q", name)
}

// NextState returns the state after one TCK with the given TMS. It panics on
// a state outside the diagram.
func NextState(current State, tms bool) State {
	if !current.valid() {
		panic(fmt.Sprintf("tap: unhandled state %d", current))
	}
	if tms {
		return diagram[current][1]
	}
	return diagram[current][0]
}

// Sequence is a TMS pattern and the states it walks through. States has one
// more entry than TMS: the starting state comes first.
type Sequence struct {
	TMS    []bool
	States []State
}

// StateMachine tracks the TAP state on the host side. It performs no I/O.
type StateMachine struct {
	state State
}

// NewStateMachine starts in Test-Logic-Reset.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateTestLogicReset}
}

func (m *StateMachine) State() State {
	return m.state
}

// Clock applies one TCK with tms and returns the new state.
func (m *StateMachine) Clock(tms bool) State {
	m.state = NextState(m.state, tms)
	return m.state
}

// Reset clocks five TMS=1 cycles, which reach Test-Logic-Reset from any state.
func (m *StateMachine) Reset() Sequence {
	seq := Sequence{TMS: []bool{true, true, true, true, true}, States: []State{m.state}}
	for _, tms := range seq.TMS {
		seq.States = append(seq.States, m.Clock(tms))
	}
	return seq
}

// GoTo walks the machine to target along the shortest TMS path and returns
// that path.
func (m *StateMachine) GoTo(target State) (Sequence, error) {
	seq, err := shortestPath(m.state, target)
	if err != nil {
		return Sequence{}, err
	}
	m.state = target
	return seq, nil
}

// shortestPath runs a breadth-first search over the diagram, keeping the
// predecessor and edge of every reached state.
func shortestPath(from, to State) (Sequence, error) {
	if !from.valid() {
		return Sequence{}, fmt.Errorf("tap: invalid start state %d", from)
	}
	if !to.valid() {
		return Sequence{}, fmt.Errorf("tap: invalid target state %d", to)
	}

	type edge struct {
		prev State
		tms  bool
		seen bool
	}
	var via [numStates]edge
	via[from].seen = true

	queue := []State{from}
	for len(queue) > 0 && !via[to].seen {
		cur := queue[0]
		queue = queue[1:]
		for _, tms := range []bool{false, true} {
			next := diagram[cur][btoi(tms)]
			if via[next].seen {
				continue
			}
			via[next] = edge{prev: cur, tms: tms, seen: true}
			queue = append(queue, next)
		}
	}

	// Unwind from the target; the diagram is strongly connected so the
	// walk always ends at from.
	var tms []bool
	states := []State{to}
	for s := to; s != from; s = via[s].prev {
		tms = append(tms, via[s].tms)
		states = append(states, via[s].prev)
	}
	for i, j := 0, len(tms)-1; i < j; i, j = i+1, j-1 {
		tms[i], tms[j] = tms[j], tms[i]
	}
	for i, j := 0, len(states)-1; i < j; i, j = i+1, j-1 {
		states[i], states[j] = states[j], states[i]
	}
	return Sequence{TMS: tms, States: states}, nil
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
