package sessiontxn

import (
	"context"
	"time"
)

// SnapshotID identifies a storage-engine snapshot.
type SnapshotID uint64

// Timestamp is a storage-engine commit/prepare timestamp.
type Timestamp struct {
	Seconds  uint32
	Counter  uint32
}

// IsZero reports whether t is the zero Timestamp.
func (t Timestamp) IsZero() bool { return t.Seconds == 0 && t.Counter == 0 }

// ReadSource selects how a RecoveryUnit picks its read timestamp.
type ReadSource int

const (
	ReadSourceUnset ReadSource = iota
	ReadSourceNoOverlap
	ReadSourceProvided
)

// ReleasedWUOWState is the opaque recovery state a WriteUnitOfWork hands
// back on Release, later fed into TxnResources and restored by its release.
type ReleasedWUOWState interface{}

// Locker is the per-operation holder of lock-manager resources: tickets and
// intent locks (§1 Out of scope: the lock manager; consumed here only
// through this interface).
type Locker interface {
	// ReleaseTicket gives up this locker's execution ticket, e.g. when its
	// resources are being parked in a TxnResources stash slot.
	ReleaseTicket()

	// ReacquireTicket blocks until an execution ticket is available again.
	ReacquireTicket(ctx context.Context) error

	// SetMaxLockTimeout bounds how long subsequent lock requests on this
	// locker may wait.
	SetMaxLockTimeout(d time.Duration)

	// UnsetMaxLockTimeout removes any bound set by SetMaxLockTimeout.
	UnsetMaxLockTimeout()

	// AcquireGlobalIntentExclusive takes the global IX lock required before
	// the first operation of a multi-statement transaction proceeds (an
	// IS->IX upgrade is not deadlock-safe, so this must be IX from the
	// start).
	AcquireGlobalIntentExclusive(ctx context.Context) error
}

// RecoveryUnit is the storage engine's per-operation handle to a snapshot
// and its pending changes (§1 Out of scope: the storage engine).
type RecoveryUnit interface {
	SnapshotID() SnapshotID
	PreallocateSnapshot(ctx context.Context) error
	SetTimestampReadSource(src ReadSource)
	SetCommitTimestamp(ts Timestamp)
	PrepareTimestamp() Timestamp
	PointInTimeReadTimestamp() (Timestamp, bool)
}

// WriteUnitOfWork is a scoped grouping of writes on a RecoveryUnit: it
// commits or aborts atomically.
type WriteUnitOfWork interface {
	Commit(ctx context.Context) error
	Prepare(ctx context.Context) error
	Release() ReleasedWUOWState
}

// OpObserver is the extension point that writes oplog entries for
// prepare/commit/abort (§1 Out of scope: the replication oplog writer and
// op-observer hooks).
type OpObserver interface {
	OnTransactionPrepare(ctx context.Context) error
	OnTransactionCommit(ctx context.Context, wasPrepared bool) error
}

// SessionRecordStore is the durable session-records collection (§6
// Persisted state).
type SessionRecordStore interface {
	// FindOne returns the one row keyed by id, or nil if absent.
	FindOne(ctx context.Context, id LogicalSessionID) (*SessionRecord, error)

	// Upsert performs the replacement upsert described in §4.6. expected is
	// the record previously read via FindOne (nil if none existed); if the
	// document on disk no longer matches expected, implementations must
	// return ErrWriteConflict rather than silently overwriting it.
	Upsert(ctx context.Context, rec SessionRecord, expected *SessionRecord) error
}

// OplogReader gives read-only access to the replicated oplog chain (§1 Out
// of scope: oplog content; only positional lookups are consumed here).
type OplogReader interface {
	// Entry returns the oplog entry recorded at the given OpTime.
	Entry(ctx context.Context, at OpTime) (OplogEntry, error)
}
