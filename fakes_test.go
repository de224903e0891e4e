package sessiontxn

import (
	"context"
	"sync"
	"time"
)

// memoryStore is an in-memory SessionRecordStore fake for tests.
type memoryStore struct {
	mu      sync.Mutex
	records map[LogicalSessionID]SessionRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[LogicalSessionID]SessionRecord)}
}

func (m *memoryStore) FindOne(ctx context.Context, id LogicalSessionID) (*SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	cp := rec
	return &cp, nil
}

func (m *memoryStore) Upsert(ctx context.Context, rec SessionRecord, expected *SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, exists := m.records[rec.SessionID]
	if expected == nil {
		if exists {
			return ErrWriteConflict
		}
	} else {
		if !exists || cur != *expected {
			return ErrWriteConflict
		}
	}
	m.records[rec.SessionID] = rec
	return nil
}

// memoryOplog is an in-memory OplogReader fake for tests, keyed by OpTime.
type memoryOplog struct {
	mu      sync.Mutex
	entries map[OpTime]OplogEntry
}

func newMemoryOplog() *memoryOplog {
	return &memoryOplog{entries: make(map[OpTime]OplogEntry)}
}

func (o *memoryOplog) append(e OplogEntry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries[e.OpTime] = e
}

func (o *memoryOplog) Entry(ctx context.Context, at OpTime) (OplogEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[at]
	if !ok {
		return OplogEntry{}, ErrIncompleteTransactionHistory
	}
	return e, nil
}

// fakeLocker is a no-op Locker fake for tests.
type fakeLocker struct {
	mu             sync.Mutex
	ticketReleased bool
	maxTimeout     time.Duration
	hasTimeout     bool
	globalIX       bool
}

func (l *fakeLocker) ReleaseTicket() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ticketReleased = true
}

func (l *fakeLocker) ReacquireTicket(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ticketReleased = false
	return nil
}

func (l *fakeLocker) SetMaxLockTimeout(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxTimeout = d
	l.hasTimeout = true
}

func (l *fakeLocker) UnsetMaxLockTimeout() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hasTimeout = false
}

func (l *fakeLocker) AcquireGlobalIntentExclusive(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.globalIX = true
	return nil
}

// fakeRecoveryUnit is a no-op RecoveryUnit fake for tests.
type fakeRecoveryUnit struct {
	snapshot        SnapshotID
	commitTimestamp Timestamp
	prepareTS       Timestamp
	preallocated    bool
}

func (r *fakeRecoveryUnit) SnapshotID() SnapshotID { return r.snapshot }

func (r *fakeRecoveryUnit) PreallocateSnapshot(ctx context.Context) error {
	r.preallocated = true
	return nil
}

func (r *fakeRecoveryUnit) SetTimestampReadSource(ReadSource) {}

func (r *fakeRecoveryUnit) SetCommitTimestamp(ts Timestamp) { r.commitTimestamp = ts }

func (r *fakeRecoveryUnit) PrepareTimestamp() Timestamp { return r.prepareTS }

func (r *fakeRecoveryUnit) PointInTimeReadTimestamp() (Timestamp, bool) { return Timestamp{}, false }

// fakeWUOW is a WriteUnitOfWork fake whose Commit/Prepare results are
// controlled by tests via the commitErr/prepareErr fields.
type fakeWUOW struct {
	commitErr  error
	prepareErr error
	committed  bool
	prepared   bool
	released   bool
}

func (w *fakeWUOW) Commit(ctx context.Context) error {
	if w.commitErr != nil {
		return w.commitErr
	}
	w.committed = true
	return nil
}

func (w *fakeWUOW) Prepare(ctx context.Context) error {
	if w.prepareErr != nil {
		return w.prepareErr
	}
	w.prepared = true
	return nil
}

func (w *fakeWUOW) Release() ReleasedWUOWState {
	w.released = true
	return "released-state"
}

// fakeOpObserver is an OpObserver fake whose results are controlled by
// tests via the prepareErr/commitErr fields.
type fakeOpObserver struct {
	prepareErr error
	commitErr  error
	preparedN  int
	committedN int
	lastPrepared bool
}

func (o *fakeOpObserver) OnTransactionPrepare(ctx context.Context) error {
	o.preparedN++
	return o.prepareErr
}

func (o *fakeOpObserver) OnTransactionCommit(ctx context.Context, wasPrepared bool) error {
	o.committedN++
	o.lastPrepared = wasPrepared
	return o.commitErr
}

func newOperationContext() *OperationContext {
	return &OperationContext{
		Locker:       &fakeLocker{},
		RecoveryUnit: &fakeRecoveryUnit{},
		WUOW:         &fakeWUOW{},
	}
}

func boolPtr(b bool) *bool { return &b }

func noopLock()   {}
func noopUnlock() {}
