package sessiontxn

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kysonic/sessiontxn/fsm"
)

// MaxInternalDocumentSize bounds transactionOperationBytes (§3 invariant),
// mirroring the source's own BSON-object-size headroom.
const MaxInternalDocumentSize = 16*1024*1024 - 16*1024

// TransactionOperation is an in-memory write descriptor buffered for later
// oplog emission (§3 transactionOperations). Its content is out of this
// module's scope (durable statement content lives in the oplog, §1
// Non-goals); only the statement ids and byte size it contributes are
// tracked here.
type TransactionOperation struct {
	StmtIDs  []StmtID
	NumBytes int
}

// Session is the Session Core (C5): the authoritative in-memory view of one
// logical session's active transaction. All fields are guarded by mu; the
// only operations that may touch a Session without an external checkout
// are Invalidate, AbortArbitraryTransaction[IfExpired], and the post-commit
// cache update returned by OnWriteOpCompletedOnPrimary (§5).
type Session struct {
	mu sync.Mutex

	id      LogicalSessionID
	cfg     Config
	store   SessionRecordStore
	oplog   OplogReader
	metrics *Metrics
	now     func() time.Time

	isValid             bool
	invalidationCounter uint64
	lastWrittenRecord   *SessionRecord

	activeTxnNumber      TxnNumber
	committedStatements  map[StmtID]OpTime
	hasIncompleteHistory bool

	machine               *fsm.Machine
	autocommit            bool
	speculativeReadOpTime OpTime

	txnResourceStash          *TxnResources
	transactionOperations     []TransactionOperation
	transactionOperationBytes int
	transactionExpireDate     time.Time
	singleTransactionStats    *SingleTransactionStats
}

// NewSession constructs a Session Core for id. It starts invalid
// (isValid=false); the first RefreshFromStorageIfNeeded populates it from
// disk (§3 Lifecycle).
func NewSession(id LogicalSessionID, cfg Config, store SessionRecordStore, oplog OplogReader, metrics *Metrics) *Session {
	return &Session{
		id:                  id,
		cfg:                 cfg,
		store:               store,
		oplog:               oplog,
		metrics:             metrics,
		now:                 time.Now,
		activeTxnNumber:     UninitializedTxnNumber,
		committedStatements: make(map[StmtID]OpTime),
		machine:             fsm.NewMachine(transitionTable, TxnStateNone),
	}
}

// ID returns the session's identity.
func (s *Session) ID() LogicalSessionID { return s.id }

// State returns the current txnState.
func (s *Session) State() fsm.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Current()
}

// ActiveTxnNumber returns the highest txn number observed by this session.
func (s *Session) ActiveTxnNumber() TxnNumber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeTxnNumber
}

// IsValid reports whether in-memory state currently matches the durable
// record.
func (s *Session) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isValid
}

// SpeculativeReadOpTime returns the read timestamp snapshotted on first
// access of the active multi-statement transaction. Callers use this to
// advance their replication client's last-op at commit time (§4.3
// _commitTransaction) — that advance itself is outside this module's scope.
func (s *Session) SpeculativeReadOpTime() OpTime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speculativeReadOpTime
}

// EstablishSpeculativeReadOpTime records ot as the read timestamp for the
// active transaction, if one has not already been recorded. Callers invoke
// this once, after UnstashTransactionResources pre-allocates a storage
// snapshot on the first operation of a multi-statement txn.
func (s *Session) EstablishSpeculativeReadOpTime(ot OpTime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.speculativeReadOpTime.IsZero() {
		s.speculativeReadOpTime = ot
	}
}

// RefreshFromStorageIfNeeded implements §4.3's cooperative refresh: loop
// while !isValid, read the durable history outside the mutex, then install
// it only if nothing invalidated the session while we were reading. A
// racing Invalidate just causes another iteration.
func (s *Session) RefreshFromStorageIfNeeded(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.isValid {
			s.mu.Unlock()
			return nil
		}
		observedCounter := s.invalidationCounter
		s.mu.Unlock()

		if err := s.cfg.hooks().BeforeRefreshFromStorage(s.id); err != nil {
			return err
		}

		hist, err := LoadActiveTransactionHistory(ctx, s.store, s.oplog, s.id)
		if err != nil {
			return err
		}

		if err := s.cfg.hooks().AfterReadSessionRecord(s.id); err != nil {
			return err
		}

		s.mu.Lock()
		if !s.isValid && s.invalidationCounter == observedCounter {
			s.installHistoryLocked(hist)
			s.isValid = true
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
	}
}

func (s *Session) installHistoryLocked(hist ActiveTransactionHistory) {
	if hist.LastRecord != nil {
		s.activeTxnNumber = hist.LastRecord.TxnNum
		s.lastWrittenRecord = hist.LastRecord
	}
	s.committedStatements = hist.CommittedStatements
	s.hasIncompleteHistory = hist.HasIncompleteHistory
	if hist.TransactionCommitted {
		_ = s.machine.Transition(TxnStateCommitted, fsm.ModeRelax)
	}
}

// setActiveTxnLocked implicitly aborts any prior InProgress transaction and
// bumps activeTxnNumber, per §4.3's "_setActiveTxn" note.
func (s *Session) setActiveTxnLocked(txnNumber TxnNumber) {
	if s.machine.Current() == TxnStateInProgress {
		s.abortTransactionLocked()
	}
	s.activeTxnNumber = txnNumber
	s.hasIncompleteHistory = false
	s.speculativeReadOpTime = OpTime{}
}

// BeginOrContinueTxn implements §4.3's policy and state machinery for
// beginning a new txn number or continuing the active one.
func (s *Session) BeginOrContinueTxn(ctx context.Context, txnNumber TxnNumber, autocommit, startTransaction *bool, dbName, cmdName string, opts WhitelistOptions) error {
	isMultiStatement := autocommit != nil && !*autocommit
	if isMultiStatement {
		if err := checkCommandWhitelisted(dbName, cmdName, opts); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if txnNumber < s.activeTxnNumber {
		return ErrTransactionTooOld
	}
	if txnNumber == s.activeTxnNumber {
		return s.continueTxnLocked(autocommit, startTransaction)
	}
	return s.beginNewTxnLocked(txnNumber, autocommit, startTransaction)
}

func (s *Session) continueTxnLocked(autocommit, startTransaction *bool) error {
	if startTransaction != nil && *startTransaction {
		return ErrConflictingOperationInProgress
	}

	if s.machine.Current() == TxnStateNone {
		if autocommit != nil {
			return ErrInvalidOptions
		}
		return nil
	}

	if autocommit != nil && !*autocommit && s.machine.Current() == TxnStateInProgress && s.txnResourceStash == nil {
		// The previous first command of this txn failed before it could
		// stash resources: treat it as stuck and abort.
		s.abortTransactionLocked()
		if s.metrics != nil {
			s.metrics.TotalAborted.Inc()
			s.metrics.CurrentOpen.Dec()
		}
		return ErrNoSuchTransaction
	}
	return nil
}

func (s *Session) beginNewTxnLocked(txnNumber TxnNumber, autocommit, startTransaction *bool) error {
	isMultiStatement := autocommit != nil && !*autocommit

	if !isMultiStatement {
		s.setActiveTxnLocked(txnNumber)
		if err := s.machine.Transition(TxnStateNone, fsm.ModeValidate); err != nil {
			assertionFailed("%v", err)
		}
		s.autocommit = true
		s.committedStatements = make(map[StmtID]OpTime)
		s.transactionOperations = nil
		s.transactionOperationBytes = 0
		s.singleTransactionStats = nil
		return nil
	}

	if startTransaction == nil || !*startTransaction {
		return ErrNoSuchTransaction
	}

	s.setActiveTxnLocked(txnNumber)
	if err := s.machine.Transition(TxnStateInProgress, fsm.ModeValidate); err != nil {
		assertionFailed("%v", err)
	}
	s.autocommit = false
	s.committedStatements = make(map[StmtID]OpTime)
	s.transactionOperations = nil
	s.transactionOperationBytes = 0
	s.transactionExpireDate = s.now().Add(s.cfg.TransactionLifetimeLimit)
	s.singleTransactionStats = newSingleTransactionStats(s.now())

	if s.metrics != nil {
		s.metrics.TotalStarted.Inc()
		s.metrics.CurrentOpen.Inc()
	}
	return nil
}

// BeginOrContinueTxnOnMigration is the chunk-migration variant of
// BeginOrContinueTxn: the new-txn-number path without whitelist checks and
// without multi-statement state (§4.3).
func (s *Session) BeginOrContinueTxnOnMigration(txnNumber TxnNumber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if txnNumber < s.activeTxnNumber {
		return ErrTransactionTooOld
	}
	if txnNumber == s.activeTxnNumber {
		return nil
	}

	s.setActiveTxnLocked(txnNumber)
	if err := s.machine.Transition(TxnStateNone, fsm.ModeValidate); err != nil {
		assertionFailed("%v", err)
	}
	s.autocommit = true
	s.committedStatements = make(map[StmtID]OpTime)
	return nil
}

// OnWriteOpCompletedOnPrimary implements §4.3/§4.6: it durably upserts the
// session record for an unreplicated write, then returns a postCommit
// closure the caller must invoke once its own write-unit-of-work commit has
// succeeded (the analogue of "register a post-commit hook on the recovery
// unit" — the recovery unit itself is outside this module's scope).
func (s *Session) OnWriteOpCompletedOnPrimary(ctx context.Context, txnNumber TxnNumber, stmtIDs []StmtID, lastOpTime OpTime, lastDate time.Time) (postCommit func(), err error) {
	s.mu.Lock()
	if txnNumber != s.activeTxnNumber {
		s.mu.Unlock()
		assertionFailed("onWriteOpCompletedOnPrimary: txnNumber %d does not match active txn %d for session %s", txnNumber, s.activeTxnNumber, s.id)
	}
	for _, id := range stmtIDs {
		if _, ok := s.committedStatements[id]; ok {
			s.mu.Unlock()
			assertionFailed("repeated execution of stmtId %d for session %s txn %d", id, s.id, txnNumber)
		}
	}
	existing := s.lastWrittenRecord
	s.mu.Unlock()

	newRecord := SessionRecord{SessionID: s.id, TxnNum: txnNumber, LastWriteOpTime: lastOpTime, LastWriteDate: lastDate}
	if err := UpdateSessionRecord(ctx, s.store, s.id, newRecord, existing); err != nil {
		return nil, err
	}

	if _, failBeforeCommit := s.cfg.hooks().OnPrimaryTransactionalWrite(s.id); failBeforeCommit != nil {
		return nil, failBeforeCommit
	}

	return func() {
		s.postCommitUpdateCacheLocked(txnNumber, stmtIDs, lastOpTime, lastDate)
	}, nil
}

// postCommitUpdateCacheLocked is the §4.5 post-commit cache update hook.
// Unlike the other *Locked helpers, it takes s.mu itself.
func (s *Session) postCommitUpdateCacheLocked(newTxnNumber TxnNumber, stmtIDs []StmtID, lastOpTime OpTime, lastDate time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isValid {
		return // Invalidate won the race.
	}

	if s.lastWrittenRecord == nil {
		rec := SessionRecord{SessionID: s.id, TxnNum: newTxnNumber, LastWriteOpTime: lastOpTime, LastWriteDate: lastDate}
		s.lastWrittenRecord = &rec
	} else {
		merged := *s.lastWrittenRecord
		if newTxnNumber > merged.TxnNum {
			merged.TxnNum = newTxnNumber
		}
		if merged.LastWriteOpTime.Before(lastOpTime) {
			merged.LastWriteOpTime = lastOpTime
		}
		if lastDate.After(merged.LastWriteDate) {
			merged.LastWriteDate = lastDate
		}
		s.lastWrittenRecord = &merged
	}

	if newTxnNumber > s.activeTxnNumber {
		s.setActiveTxnLocked(newTxnNumber)
		if err := s.machine.Transition(TxnStateNone, fsm.ModeValidate); err != nil {
			assertionFailed("%v", err)
		}
		s.autocommit = true
		return
	}

	if newTxnNumber == s.activeTxnNumber {
		for _, id := range stmtIDs {
			if id == IncompleteHistoryStmtID {
				s.hasIncompleteHistory = true
				continue
			}
			if _, ok := s.committedStatements[id]; ok {
				assertionFailed("duplicate stmtId %d merged into committedStatements for session %s txn %d", id, s.id, newTxnNumber)
			}
			s.committedStatements[id] = lastOpTime
		}
	}
}

// CheckStatementExecuted implements §4.3's checkStatementExecuted without
// the fetching variant.
func (s *Session) CheckStatementExecuted(txnNumber TxnNumber, stmtID StmtID) (OpTime, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if txnNumber != s.activeTxnNumber {
		return OpTime{}, false, nil
	}
	if s.machine.Current() != TxnStateNone {
		// Retries are undetected inside a multi-statement txn.
		return OpTime{}, false, nil
	}

	if stmtID == IncompleteHistoryStmtID {
		if s.hasIncompleteHistory {
			return OpTime{}, true, nil
		}
		return OpTime{}, false, nil
	}

	if ot, ok := s.committedStatements[stmtID]; ok {
		return ot, true, nil
	}
	if s.hasIncompleteHistory {
		return OpTime{}, false, ErrIncompleteTransactionHistory
	}
	return OpTime{}, false, nil
}

// CheckStatementExecutedAndFetch additionally walks the oplog to return the
// exact entry for stmtId, per §4.3's fetching variant.
func (s *Session) CheckStatementExecutedAndFetch(ctx context.Context, txnNumber TxnNumber, stmtID StmtID) (*OplogEntry, error) {
	opTime, found, err := s.CheckStatementExecuted(txnNumber, stmtID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	entry, err := s.oplog.Entry(ctx, opTime)
	if err != nil {
		return nil, errors.Wrap(err, "fetching oplog entry for executed statement")
	}
	return &entry, nil
}

// OnMigrateBeginOnPrimary implements §4.3: begins/continues the recipient's
// txn, then reports whether stmtId was already executed (so the migration
// source can skip re-copying it), tolerating IncompleteTransactionHistory
// by continuing.
func (s *Session) OnMigrateBeginOnPrimary(ctx context.Context, txnNumber TxnNumber, stmtID StmtID) (bool, error) {
	if err := s.BeginOrContinueTxnOnMigration(txnNumber); err != nil {
		return false, err
	}

	_, found, err := s.CheckStatementExecuted(txnNumber, stmtID)
	if err != nil {
		if errors.Is(err, ErrIncompleteTransactionHistory) {
			return true, nil
		}
		return false, err
	}
	if found {
		return false, nil
	}
	return true, nil
}

// OnMigrateCompletedOnPrimary is OnWriteOpCompletedOnPrimary with lastDate
// clamped to max(existing, supplied), so migration can never move the
// last-write-date backwards (§4.3).
func (s *Session) OnMigrateCompletedOnPrimary(ctx context.Context, txnNumber TxnNumber, stmtIDs []StmtID, lastOpTime OpTime, lastDate time.Time) (func(), error) {
	s.mu.Lock()
	existing := s.lastWrittenRecord
	s.mu.Unlock()

	if existing != nil && existing.LastWriteDate.After(lastDate) {
		lastDate = existing.LastWriteDate
	}
	return s.OnWriteOpCompletedOnPrimary(ctx, txnNumber, stmtIDs, lastOpTime, lastDate)
}

// StashTransactionResources implements §4.3/§4.7's stash half. lockClient
// and unlockClient model the caller's client-lock, which must be held
// before the session mutex per §5's fixed lock order.
func (s *Session) StashTransactionResources(opCtx *OperationContext, lockClient, unlockClient func()) {
	lockClient()
	defer unlockClient()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.machine.Current() == TxnStateNone {
		return
	}
	if s.txnResourceStash != nil {
		assertionFailed("StashTransactionResources: stash slot already occupied for session %s", s.id)
	}

	s.txnResourceStash = StashTxnResources(opCtx, s.cfg.MaxTransactionLockRequestTimeout)
	if s.singleTransactionStats != nil {
		s.singleTransactionStats.MarkInactive(s.now())
	}
	if s.metrics != nil {
		s.metrics.CurrentActive.Dec()
		s.metrics.CurrentInactive.Inc()
	}
}

// UnstashTransactionResources implements §4.4's mode table.
func (s *Session) UnstashTransactionResources(ctx context.Context, opCtx *OperationContext, cmdName string, lockClient, unlockClient func()) error {
	lockClient()
	defer unlockClient()

	s.mu.Lock()

	switch s.machine.Current() {
	case TxnStateNone:
		s.mu.Unlock()
		return nil
	case TxnStateAborted:
		s.mu.Unlock()
		return ErrNoSuchTransaction
	case TxnStateCommitted:
		if cmdName != "commitTransaction" {
			s.mu.Unlock()
			return ErrTransactionCommitted
		}
	}

	if s.txnResourceStash != nil {
		if opCtx.ReadConcern.Level != "" {
			s.mu.Unlock()
			return ErrInvalidOptions
		}
		stash := s.txnResourceStash
		s.txnResourceStash = nil
		s.mu.Unlock()

		if err := stash.Release(ctx, opCtx); err != nil {
			return err
		}

		s.mu.Lock()
		if s.singleTransactionStats != nil {
			s.singleTransactionStats.MarkActive(s.now())
		}
		if s.metrics != nil {
			s.metrics.CurrentInactive.Dec()
			s.metrics.CurrentActive.Inc()
		}
		s.mu.Unlock()
		return nil
	}

	cur := s.machine.Current()
	if cur == TxnStatePrepared {
		s.mu.Unlock()
		assertionFailed("UnstashTransactionResources: Prepared txn missing its resource stash for session %s", s.id)
	}
	if cur == TxnStateCommittingWithoutPrepare || cur == TxnStateCommittingWithPrepare || cur == TxnStateCommitted {
		s.mu.Unlock()
		return nil
	}

	// InProgress, first command after start: arm the lock timeout, take the
	// global IX lock and pre-allocate the snapshot. No new WUOW is created
	// here; opCtx keeps the WUOW it already carries.
	if s.metrics != nil {
		s.metrics.CurrentActive.Inc()
	}
	if s.singleTransactionStats != nil {
		s.singleTransactionStats.MarkActive(s.now())
	}
	timeout := s.cfg.MaxTransactionLockRequestTimeout
	s.mu.Unlock()

	if timeout >= 0 {
		opCtx.Locker.SetMaxLockTimeout(timeout)
	}

	if err := opCtx.Locker.AcquireGlobalIntentExclusive(ctx); err != nil {
		return err
	}
	if err := opCtx.RecoveryUnit.PreallocateSnapshot(ctx); err != nil {
		return err
	}
	s.cfg.hooks().HangAfterPreallocateSnapshot(s.id)
	return nil
}

// PrepareTransaction implements §4.3's prepareTransaction. It releases the
// session mutex around the op-observer call because the observer writes an
// oplog entry that may round-trip back into this same session (§9).
func (s *Session) PrepareTransaction(ctx context.Context, opCtx *OperationContext, observer OpObserver) (Timestamp, error) {
	s.mu.Lock()
	if s.machine.Current() != TxnStateInProgress {
		s.mu.Unlock()
		return Timestamp{}, ErrNoSuchTransaction
	}
	activeTxnNumber := s.activeTxnNumber
	if err := s.machine.Transition(TxnStatePrepared, fsm.ModeValidate); err != nil {
		s.mu.Unlock()
		assertionFailed("%v", err)
	}
	s.mu.Unlock()

	guardDismissed := false
	defer func() {
		if !guardDismissed {
			s.mu.Lock()
			if s.activeTxnNumber == activeTxnNumber && s.machine.Current() == TxnStatePrepared {
				s.abortTransactionLocked()
				if s.metrics != nil {
					s.metrics.TotalAborted.Inc()
					s.metrics.CurrentOpen.Dec()
				}
			}
			s.mu.Unlock()
		}
	}()

	if err := observer.OnTransactionPrepare(ctx); err != nil {
		return Timestamp{}, err
	}

	s.mu.Lock()
	if s.activeTxnNumber != activeTxnNumber || s.machine.Current() != TxnStatePrepared {
		s.mu.Unlock()
		assertionFailed("session %s txn state changed underneath prepareTransaction", s.id)
	}
	s.mu.Unlock()

	if err := opCtx.WUOW.Prepare(ctx); err != nil {
		return Timestamp{}, err
	}
	guardDismissed = true

	return opCtx.RecoveryUnit.PrepareTimestamp(), nil
}

// CommitUnpreparedTransaction implements §4.3's commitUnpreparedTransaction.
func (s *Session) CommitUnpreparedTransaction(ctx context.Context, opCtx *OperationContext, observer OpObserver) error {
	s.mu.Lock()
	if s.machine.Current() == TxnStatePrepared {
		s.mu.Unlock()
		return ErrInvalidOptions
	}
	if s.machine.Current() != TxnStateInProgress {
		s.mu.Unlock()
		return ErrNoSuchTransaction
	}
	if err := s.machine.Transition(TxnStateCommittingWithoutPrepare, fsm.ModeValidate); err != nil {
		s.mu.Unlock()
		assertionFailed("%v", err)
	}
	s.mu.Unlock()

	if err := observer.OnTransactionCommit(ctx, false); err != nil {
		return err
	}
	return s.commitTransaction(ctx, opCtx)
}

// CommitPreparedTransaction implements §4.3's commitPreparedTransaction.
func (s *Session) CommitPreparedTransaction(ctx context.Context, opCtx *OperationContext, observer OpObserver, commitTimestamp Timestamp) error {
	if commitTimestamp.IsZero() {
		return ErrInvalidOptions
	}

	s.mu.Lock()
	if s.machine.Current() != TxnStatePrepared {
		s.mu.Unlock()
		return ErrInvalidOptions
	}
	if err := s.machine.Transition(TxnStateCommittingWithPrepare, fsm.ModeValidate); err != nil {
		s.mu.Unlock()
		assertionFailed("%v", err)
	}
	s.mu.Unlock()

	opCtx.RecoveryUnit.SetCommitTimestamp(commitTimestamp)

	if err := observer.OnTransactionCommit(ctx, true); err != nil {
		return err
	}
	return s.commitTransaction(ctx, opCtx)
}

// commitTransaction is the shared _commitTransaction tail (§4.3): an
// on-exit guard treats anything short of a successful storage commit as a
// failed commit, transitioning to Aborted and clearing opCtx's lock timeout.
// opCtx's recovery unit is not replaced.
func (s *Session) commitTransaction(ctx context.Context, opCtx *OperationContext) error {
	committed := false
	defer func() {
		if !committed {
			s.mu.Lock()
			s.abortTransactionLocked()
			if s.metrics != nil {
				s.metrics.TotalAborted.Inc()
				s.metrics.CurrentOpen.Dec()
			}
			s.mu.Unlock()
			opCtx.Locker.UnsetMaxLockTimeout()
		}
	}()

	if err := opCtx.WUOW.Commit(ctx); err != nil {
		return err
	}
	committed = true

	s.mu.Lock()
	if err := s.machine.Transition(TxnStateCommitted, fsm.ModeValidate); err != nil {
		assertionFailed("%v", err)
	}
	if s.singleTransactionStats != nil {
		s.singleTransactionStats.End(s.now())
	}
	if s.metrics != nil {
		s.metrics.TotalCommitted.Inc()
		s.metrics.CurrentOpen.Dec()
		s.metrics.CurrentActive.Dec()
	}
	s.mu.Unlock()
	return nil
}

// abortTransactionLocked is the shared _abortTransaction tail (§4.3).
func (s *Session) abortTransactionLocked() {
	if s.txnResourceStash != nil {
		s.txnResourceStash.Abandon()
		s.txnResourceStash = nil
	}
	s.transactionOperations = nil
	s.transactionOperationBytes = 0
	if err := s.machine.Transition(TxnStateAborted, fsm.ModeValidate); err != nil {
		assertionFailed("%v", err)
	}
	s.speculativeReadOpTime = OpTime{}
	if s.singleTransactionStats != nil {
		s.singleTransactionStats.End(s.now())
	}
}

// AbortActiveTransaction implements the user-visible abortTransaction
// command (§4.3).
func (s *Session) AbortActiveTransaction(opCtx *OperationContext) {
	s.mu.Lock()
	cur := s.machine.Current()
	if cur == TxnStateNone {
		s.mu.Unlock()
		return
	}
	wasOpen := cur != TxnStateAborted && cur != TxnStateCommitted
	s.abortTransactionLocked()
	if wasOpen && s.metrics != nil {
		s.metrics.TotalAborted.Inc()
		s.metrics.CurrentOpen.Dec()
	}
	s.mu.Unlock()

	if opCtx != nil {
		opCtx.WUOW = nil
		if opCtx.Locker != nil {
			opCtx.Locker.UnsetMaxLockTimeout()
		}
	}
}

// AbortArbitraryTransaction aborts only an InProgress transaction: a
// Prepared transaction requires an explicit abort command (§4.3).
func (s *Session) AbortArbitraryTransaction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine.Current() != TxnStateInProgress {
		return
	}
	s.abortTransactionLocked()
	if s.metrics != nil {
		s.metrics.TotalAborted.Inc()
		s.metrics.CurrentOpen.Dec()
	}
}

// AbortArbitraryTransactionIfExpired no-ops unless transactionExpireDate <=
// now (§4.3, §5, §8 boundary: expiry at exactly the deadline aborts, one
// microsecond earlier does not).
func (s *Session) AbortArbitraryTransactionIfExpired(now time.Time) {
	s.mu.Lock()
	expired := s.machine.Current() == TxnStateInProgress && !s.transactionExpireDate.After(now)
	s.mu.Unlock()
	if !expired {
		return
	}
	s.AbortArbitraryTransaction()
}

// ExpireDate returns the active multi-statement transaction's deadline, the
// zero time if none is active. Used by the reaper to order its sweep.
func (s *Session) ExpireDate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine.Current() != TxnStateInProgress {
		return time.Time{}
	}
	return s.transactionExpireDate
}

// AddTransactionOperation implements §4.3's addTransactionOperation. Its
// preconditions (InProgress, multi-statement, inside a WUOW) are the
// caller's responsibility to have already established via
// UnstashTransactionResources; violating them is a programming error.
func (s *Session) AddTransactionOperation(op TransactionOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.machine.Current() != TxnStateInProgress || s.autocommit {
		assertionFailed("AddTransactionOperation called outside an in-progress multi-statement transaction for session %s", s.id)
	}

	if s.transactionOperationBytes+op.NumBytes > MaxInternalDocumentSize {
		return ErrTransactionTooLarge
	}
	s.transactionOperations = append(s.transactionOperations, op)
	s.transactionOperationBytes += op.NumBytes
	return nil
}

// EndTransactionAndRetrieveOperations implements §4.3: the op-observer
// calls this once, while Prepared or CommittingWithoutPrepare, to drain the
// buffered operations for oplog emission.
func (s *Session) EndTransactionAndRetrieveOperations() []TransactionOperation {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.machine.Current()
	if cur != TxnStatePrepared && cur != TxnStateCommittingWithoutPrepare {
		assertionFailed("EndTransactionAndRetrieveOperations called in state %s for session %s", cur, s.id)
	}

	ops := s.transactionOperations
	s.transactionOperations = nil
	s.transactionOperationBytes = 0
	return ops
}

// Invalidate implements §4.3's invalidate: drop all in-memory transaction
// state and mark the session stale, so the next checkout refreshes it.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.isValid = false
	s.invalidationCounter++
	s.activeTxnNumber = UninitializedTxnNumber
	s.committedStatements = make(map[StmtID]OpTime)
	s.speculativeReadOpTime = OpTime{}
	s.hasIncompleteHistory = false
	s.lastWrittenRecord = nil
}

// ReportStashedState implements §6's reportStashedState: non-empty only
// while a TxnResources is parked in the stash slot.
func (s *Session) ReportStashedState(now time.Time) (StashedStateReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txnResourceStash == nil || s.singleTransactionStats == nil {
		return StashedStateReport{}, false
	}
	params := TransactionParameters{TxnNumber: s.activeTxnNumber, Autocommit: s.autocommit}
	return reportStashedState(now, Timestamp{}, params, s.singleTransactionStats), true
}

// ReportUnstashedState implements §6's reportUnstashedState: produced only
// when no TxnResources is currently stashed.
func (s *Session) ReportUnstashedState() (UnstashedStateReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.txnResourceStash != nil || s.singleTransactionStats == nil {
		return UnstashedStateReport{}, false
	}
	params := TransactionParameters{TxnNumber: s.activeTxnNumber, Autocommit: s.autocommit}
	return UnstashedStateReport{Parameters: params}, true
}

// TransactionInfoForLog implements §6's transactionInfoForLog slow-query
// log line.
func (s *Session) TransactionInfoForLog(now time.Time, cause string) (TransactionLogLine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.singleTransactionStats == nil {
		return TransactionLogLine{}, false
	}
	params := TransactionParameters{TxnNumber: s.activeTxnNumber, Autocommit: s.autocommit}
	return transactionInfoForLog(now, Timestamp{}, params, s.singleTransactionStats, cause), true
}
