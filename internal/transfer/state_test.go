package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachineHappyPath(t *testing.T) {
	sm := newStateMachine()
	for _, next := range []State{StateFetching, StateFetched, StateWriting, StateDone} {
		require.NoError(t, sm.advance(next), "advance to %s", next)
	}
	assert.Equal(t, StateDone, sm.current)
	assert.True(t, sm.current.Terminal())
}

func TestStateMachineRejectsIllegalTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []State
		next State
	}{
		{name: "write before fetch", path: nil, next: StateWriting},
		{name: "write after failed fetch", path: []State{StateFetching, StateFetchFailed}, next: StateWriting},
		{name: "refetch after write failure", path: []State{StateFetching, StateFetched, StateWriting, StateWriteFailed}, next: StateFetching},
		{name: "done twice", path: []State{StateFetching, StateFetched, StateDone}, next: StateDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := newStateMachine()
			for _, s := range tt.path {
				require.NoError(t, sm.advance(s))
			}
			assert.Error(t, sm.advance(tt.next))
		})
	}
}

func TestStateMachineMustAdvancePanics(t *testing.T) {
	sm := newStateMachine()
	assert.Panics(t, func() { sm.mustAdvance(StateDone) })
}

func TestTerminalStates(t *testing.T) {
	assert.False(t, StateInit.Terminal())
	assert.False(t, StateWriting.Terminal())
	assert.True(t, StateFetchFailed.Terminal())
	assert.True(t, StateWriteFailed.Terminal())
}
