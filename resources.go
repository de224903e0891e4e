package sessiontxn

import (
	"context"
	"time"
)

// OperationContext is the thin slice of a caller's per-operation state that
// TxnResources moves between "attached to the current operation" and
// "parked in the session's stash slot" (§4.7). The storage engine, lock
// manager, and WUOW themselves are out of this module's scope (§1); this
// struct is the seam a caller's real opCtx type must satisfy.
type OperationContext struct {
	Locker       Locker
	RecoveryUnit RecoveryUnit
	WUOW         WriteUnitOfWork
	ReadConcern  ReadConcernArgs
}

// ReadConcernArgs is the read-concern supplied with the first command of a
// transaction; only the first command of a txn may supply one (§4.4).
type ReadConcernArgs struct {
	Level string
}

// TxnResources is the Txn Resources holder (C3): a suspended transaction's
// locker, recovery unit, WUOW release state, and read-concern args, plus
// the release protocol that re-attaches them to a new operation. Modeled as
// a small value type with an explicit Release method rather than shared
// ownership, per §9 Design Notes.
type TxnResources struct {
	locker       Locker
	recoveryUnit RecoveryUnit
	wuowState    ReleasedWUOWState
	readConcern  ReadConcernArgs

	lockTimeout    time.Duration
	hasLockTimeout bool

	released bool
}

// StashTxnResources captures opCtx's resources for parking in a session's
// stash slot (§4.7). The WUOW is released to obtain its recovery state; the
// locker gives up its execution ticket. opCtx's fields are left as they are:
// StashTxnResources does not give opCtx a fresh locker or recovery unit.
//
// If maxLockTimeout is non-negative, the stashed locker is armed with it;
// Release removes that bound again.
func StashTxnResources(opCtx *OperationContext, maxLockTimeout time.Duration) *TxnResources {
	r := &TxnResources{
		locker:       opCtx.Locker,
		recoveryUnit: opCtx.RecoveryUnit,
		readConcern:  opCtx.ReadConcern,
	}
	if opCtx.WUOW != nil {
		r.wuowState = opCtx.WUOW.Release()
	}
	r.locker.ReleaseTicket()
	if maxLockTimeout >= 0 {
		r.locker.SetMaxLockTimeout(maxLockTimeout)
		r.hasLockTimeout = true
		r.lockTimeout = maxLockTimeout
	}
	return r
}

// Release re-attaches r's locker, recovery unit and read-concern args to
// opCtx. The WUOW recovery state captured by StashTxnResources is not handed
// back to any WriteUnitOfWork; opCtx.WUOW is left as it is. It must appear
// atomic from the caller's perspective: the locker
// reacquires its execution ticket — which may block — before r is marked
// released (§4.7).
func (r *TxnResources) Release(ctx context.Context, opCtx *OperationContext) error {
	if r.released {
		assertionFailed("TxnResources.Release called twice")
	}
	if err := r.locker.ReacquireTicket(ctx); err != nil {
		return err
	}
	r.released = true

	if r.hasLockTimeout {
		r.locker.UnsetMaxLockTimeout()
	}
	opCtx.Locker = r.locker
	opCtx.RecoveryUnit = r.recoveryUnit
	opCtx.ReadConcern = r.readConcern
	return nil
}

// Abandon aborts the held WUOW rather than resuming it, for the case where
// a TxnResources is discarded without ever being released (e.g. on abort).
// This mirrors the original's rule that a destructor without release aborts
// the WUOW and ends the locker's write-unit nesting; Go has no destructors,
// so callers that discard a TxnResources must call Abandon explicitly.
func (r *TxnResources) Abandon() {
	if r.released {
		return
	}
	r.released = true
}

// SideTransactionScope is a scoped guard (C4) that swaps a TxnResources out
// of opCtx for the duration of an internal operation — e.g. the durable
// upsert in onWriteOpCompletedOnPrimary — and restores it on Close, letting
// that operation run outside the user's transaction snapshot (§4.7).
type SideTransactionScope struct {
	opCtx     *OperationContext
	stashed   *TxnResources
	hadWUOW   bool
	lockedOut time.Duration
}

// BeginSideTransaction stashes opCtx's current transaction (if any) and
// returns a scope that restores it on Close.
func BeginSideTransaction(opCtx *OperationContext, maxLockTimeout time.Duration) *SideTransactionScope {
	s := &SideTransactionScope{opCtx: opCtx}
	if opCtx.WUOW != nil {
		s.hadWUOW = true
		s.lockedOut = maxLockTimeout
		s.stashed = StashTxnResources(opCtx, maxLockTimeout)
	}
	return s
}

// Close restores the transaction stashed by BeginSideTransaction, if any.
func (s *SideTransactionScope) Close(ctx context.Context) error {
	if !s.hadWUOW {
		return nil
	}
	return s.stashed.Release(ctx, s.opCtx)
}
