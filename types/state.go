package types

// State is the lifecycle state of a request inside a store.
//
// The transition graph is NEW → WAITING → EXECUTING → {COMPLETED, FAILED};
// a FAILED request moves back to WAITING only through a retry pass.
type State string

const (
	StateNew       State = "NEW"
	StateWaiting   State = "WAITING"
	StateExecuting State = "EXECUTING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// Terminal reports whether no further transitions are expected for s,
// short of an explicit retry pass.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Valid reports whether s is one of the known state literals.
func (s State) Valid() bool {
	switch s {
	case StateNew, StateWaiting, StateExecuting, StateCompleted, StateFailed:
		return true
	}
	return false
}

func (s State) String() string { return string(s) }
