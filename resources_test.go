package sessiontxn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStashAndReleaseRoundTrip(t *testing.T) {
	opCtx := newOperationContext()
	locker := opCtx.Locker.(*fakeLocker)
	wuow := opCtx.WUOW.(*fakeWUOW)

	stash := StashTxnResources(opCtx, 5)
	assert.True(t, locker.ticketReleased)
	assert.True(t, wuow.released)
	assert.True(t, locker.hasTimeout)

	err := stash.Release(context.Background(), opCtx)
	require.NoError(t, err)
	assert.False(t, locker.ticketReleased)
	assert.False(t, locker.hasTimeout)
	assert.Same(t, locker, opCtx.Locker)
}

func TestDoubleReleaseIsFatal(t *testing.T) {
	opCtx := newOperationContext()
	stash := StashTxnResources(opCtx, -1)

	require.NoError(t, stash.Release(context.Background(), opCtx))
	assert.Panics(t, func() {
		_ = stash.Release(context.Background(), opCtx)
	})
}

func TestAbandonDoesNotPanicOnSubsequentAbandon(t *testing.T) {
	opCtx := newOperationContext()
	stash := StashTxnResources(opCtx, -1)
	stash.Abandon()
	assert.NotPanics(t, func() {
		stash.Abandon()
	})
}

func TestSideTransactionScopeSwapsOutAndRestores(t *testing.T) {
	opCtx := newOperationContext()
	originalLocker := opCtx.Locker
	originalRU := opCtx.RecoveryUnit

	scope := BeginSideTransaction(opCtx, -1)
	// The locker/recovery-unit references themselves are unchanged by
	// stashing (only their internal ticket/timeout state), so this scope
	// mainly needs to route Close back through Release without error.
	err := scope.Close(context.Background())
	require.NoError(t, err)
	assert.Same(t, originalLocker, opCtx.Locker)
	assert.Same(t, originalRU, opCtx.RecoveryUnit)
}

func TestSideTransactionScopeNoopWithoutWUOW(t *testing.T) {
	opCtx := &OperationContext{Locker: &fakeLocker{}, RecoveryUnit: &fakeRecoveryUnit{}}
	scope := BeginSideTransaction(opCtx, -1)
	assert.NoError(t, scope.Close(context.Background()))
}
