package sessiontxn

import "github.com/kysonic/sessiontxn/fsm"

// Transaction states (§4.1). None encodes "no multi-statement txn; either
// fresh or operating in retryable-write mode" and is reachable from every
// terminal state so a new txn number resets cleanly.
const (
	TxnStateNone                     fsm.State = "None"
	TxnStateInProgress               fsm.State = "InProgress"
	TxnStatePrepared                 fsm.State = "Prepared"
	TxnStateCommittingWithoutPrepare fsm.State = "CommittingWithoutPrepare"
	TxnStateCommittingWithPrepare    fsm.State = "CommittingWithPrepare"
	TxnStateCommitted                fsm.State = "Committed"
	TxnStateAborted                  fsm.State = "Aborted"
)

// transitionTable is the canonical transition table from §4.1. It is built
// once and shared read-only across every Session; fsm.Machine only ever
// reads from it.
var transitionTable = fsm.NewTransitions(map[fsm.State][]fsm.State{
	TxnStateNone:                     {TxnStateNone, TxnStateInProgress},
	TxnStateInProgress:               {TxnStateNone, TxnStatePrepared, TxnStateCommittingWithoutPrepare, TxnStateAborted},
	TxnStatePrepared:                 {TxnStateCommittingWithPrepare, TxnStateAborted},
	TxnStateCommittingWithoutPrepare: {TxnStateNone, TxnStateCommitted, TxnStateAborted},
	TxnStateCommittingWithPrepare:    {TxnStateNone, TxnStateCommitted, TxnStateAborted},
	TxnStateCommitted:                {TxnStateNone, TxnStateInProgress},
	TxnStateAborted:                  {TxnStateNone, TxnStateInProgress},
})
