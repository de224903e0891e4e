package sessiontxn

// Hooks provides test-only interception points into the Session Core.
// Internal: This should never be used and is not supported.
type Hooks interface {
	// BeforeRefreshFromStorage fires before refreshFromStorageIfNeeded
	// releases the session mutex to call the Durable History Loader.
	BeforeRefreshFromStorage(id LogicalSessionID) error

	// AfterReadSessionRecord fires after the Durable History Loader has read
	// the session's durable row, before installing results back into the
	// Session Core.
	AfterReadSessionRecord(id LogicalSessionID) error

	// OnPrimaryTransactionalWrite is the onPrimaryTransactionalWrite
	// failpoint (§6): it may report that the connection should be closed
	// and/or that the write-unit-of-work commit should fail with a given
	// error, simulating partial-failure semantics of a replay.
	OnPrimaryTransactionalWrite(id LogicalSessionID) (closeConnection bool, failBeforeCommit error)

	// HangAfterPreallocateSnapshot is the hangAfterPreallocateSnapshot
	// failpoint (§6): a pause point after the storage snapshot has been
	// pre-allocated on unstash, before the first operation proceeds.
	HangAfterPreallocateSnapshot(id LogicalSessionID)
}

// DefaultHooks is the no-op Hooks implementation installed in production.
type DefaultHooks struct{}

func (DefaultHooks) BeforeRefreshFromStorage(LogicalSessionID) error { return nil }

func (DefaultHooks) AfterReadSessionRecord(LogicalSessionID) error { return nil }

func (DefaultHooks) OnPrimaryTransactionalWrite(LogicalSessionID) (bool, error) { return false, nil }

func (DefaultHooks) HangAfterPreallocateSnapshot(LogicalSessionID) {}
