package fsm_test

import (
	"testing"

	"github.com/kysonic/sessiontxn/fsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	stateNone                     fsm.State = "None"
	stateInProgress               fsm.State = "InProgress"
	statePrepared                 fsm.State = "Prepared"
	stateCommittingWithoutPrepare fsm.State = "CommittingWithoutPrepare"
	stateCommittingWithPrepare    fsm.State = "CommittingWithPrepare"
	stateCommitted                fsm.State = "Committed"
	stateAborted                  fsm.State = "Aborted"
)

func txnTable() fsm.Transitions {
	return fsm.NewTransitions(map[fsm.State][]fsm.State{
		stateNone:                     {stateNone, stateInProgress},
		stateInProgress:               {stateNone, statePrepared, stateCommittingWithoutPrepare, stateAborted},
		statePrepared:                 {stateCommittingWithPrepare, stateAborted},
		stateCommittingWithoutPrepare: {stateNone, stateCommitted, stateAborted},
		stateCommittingWithPrepare:    {stateNone, stateCommitted, stateAborted},
		stateCommitted:                {stateNone, stateInProgress},
		stateAborted:                  {stateNone, stateInProgress},
	})
}

func TestLegalTransitionsSucceed(t *testing.T) {
	m := fsm.NewMachine(txnTable(), stateNone)
	require.NoError(t, m.Transition(stateInProgress, fsm.ModeValidate))
	assert.Equal(t, stateInProgress, m.Current())
	require.NoError(t, m.Transition(statePrepared, fsm.ModeValidate))
	require.NoError(t, m.Transition(stateCommittingWithPrepare, fsm.ModeValidate))
	require.NoError(t, m.Transition(stateCommitted, fsm.ModeValidate))
	assert.Equal(t, stateCommitted, m.Current())
}

func TestIllegalTransitionFailsAndLeavesStateUnchanged(t *testing.T) {
	m := fsm.NewMachine(txnTable(), statePrepared)
	err := m.Transition(stateCommitted, fsm.ModeValidate)
	assert.Error(t, err)
	assert.Equal(t, statePrepared, m.Current())
}

func TestRelaxModeAcceptsAnyEdge(t *testing.T) {
	m := fsm.NewMachine(txnTable(), stateAborted)
	require.NoError(t, m.Transition(stateCommitted, fsm.ModeRelax))
	assert.Equal(t, stateCommitted, m.Current())
}

func TestCanTransitionDoesNotMutate(t *testing.T) {
	m := fsm.NewMachine(txnTable(), stateNone)
	assert.True(t, m.CanTransition(stateInProgress))
	assert.False(t, m.CanTransition(statePrepared))
	assert.Equal(t, stateNone, m.Current())
}

func TestNoneReachableFromEveryTerminalState(t *testing.T) {
	for _, from := range []fsm.State{stateCommittingWithoutPrepare, stateCommittingWithPrepare, stateCommitted, stateAborted} {
		m := fsm.NewMachine(txnTable(), from)
		assert.True(t, m.CanTransition(stateNone), "expected None reachable from %s", from)
	}
}
