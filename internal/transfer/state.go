package transfer

import "fmt"

// State is the progress of a transfer.
type State string

const (
	StateInit        State = "init"
	StateFetching    State = "fetching"
	StateFetched     State = "fetched"
	StateFetchFailed State = "fetch_failed"
	StateWriting     State = "writing"
	StateDone        State = "done"
	StateWriteFailed State = "write_failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateFetchFailed, StateWriteFailed:
		return true
	}
	return false
}

var transitions = map[State][]State{
	StateInit:     {StateFetching},
	StateFetching: {StateFetched, StateFetchFailed},
	// Fetched goes straight to Done on a dry run.
	StateFetched: {StateWriting, StateDone},
	StateWriting: {StateDone, StateWriteFailed},
}

// stateMachine tracks one transfer. States are never re-entered.
type stateMachine struct {
	current State
	visited map[State]bool
}

func newStateMachine() *stateMachine {
	return &stateMachine{
		current: StateInit,
		visited: map[State]bool{StateInit: true},
	}
}

func (m *stateMachine) advance(next State) error {
	if m.visited[next] {
		return fmt.Errorf("transfer: state %s already visited", next)
	}
	for _, allowed := range transitions[m.current] {
		if allowed == next {
			m.current = next
			m.visited[next] = true
			return nil
		}
	}
	return fmt.Errorf("transfer: illegal transition %s -> %s", m.current, next)
}

// mustAdvance panics on an illegal transition, which is a programming error.
func (m *stateMachine) mustAdvance(next State) {
	if err := m.advance(next); err != nil {
		panic(err)
	}
}
