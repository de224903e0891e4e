// Package fsm implements a small, data-driven finite state machine matcher.
//
// A Transitions table lists every legal (State, Event) -> State edge. A
// Machine wraps a current State and looks transitions up in the table,
// either enforcing the table (ModeValidate) or accepting any edge
// (ModeRelax) for callers that need to install a state reconstructed from
// an external source of truth.
package fsm

import "fmt"

// State is a named state of the machine.
type State string

// Event names a requested transition out of the current state.
type Event string

// Mode controls how Machine.Transition treats an edge that is not in the
// table.
type Mode int

const (
	// ModeValidate rejects any (State, Event) pair not present in the table.
	ModeValidate Mode = iota

	// ModeRelax accepts any Event from any State, bypassing the table
	// entirely. Intended for callers reconstructing state from a durable
	// source of truth rather than driving the machine through its normal
	// operations.
	ModeRelax
)

type edge struct {
	from  State
	event Event
}

// Transitions is a lookup table of legal (from, event) -> to edges.
type Transitions map[edge]State

// NewTransitions builds a Transitions table from a map of source state to
// the set of states reachable from it. The Event used to reach a target
// state is the target state's own name, matching the style of tables whose
// events are "become InProgress", "become Aborted", etc.
func NewTransitions(edges map[State][]State) Transitions {
	t := make(Transitions)
	for from, tos := range edges {
		for _, to := range tos {
			t[edge{from, Event(to)}] = to
		}
	}
	return t
}

// Machine tracks a current State and arbitrates transitions against a
// Transitions table.
type Machine struct {
	table   Transitions
	current State
}

// NewMachine returns a Machine starting in initial, validated against table.
func NewMachine(table Transitions, initial State) *Machine {
	return &Machine{table: table, current: initial}
}

// Current returns the machine's current state.
func (m *Machine) Current() State {
	return m.current
}

// Transition attempts to move the machine to newState. In ModeValidate, the
// transition must appear in the table or an error is returned and the
// current state is left unchanged. In ModeRelax, the move always succeeds.
func (m *Machine) Transition(newState State, mode Mode) error {
	if mode == ModeRelax {
		m.current = newState
		return nil
	}
	if _, ok := m.table[edge{m.current, Event(newState)}]; !ok {
		return fmt.Errorf("illegal transition: %s -> %s", m.current, newState)
	}
	m.current = newState
	return nil
}

// CanTransition reports whether newState is reachable from the current
// state under ModeValidate, without mutating the machine.
func (m *Machine) CanTransition(newState State) bool {
	_, ok := m.table[edge{m.current, Event(newState)}]
	return ok
}
