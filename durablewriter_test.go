package sessiontxn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateSessionRecord_InsertsWhenNoneExisted(t *testing.T) {
	store := newMemoryStore()
	id := NewLogicalSessionID()
	rec := SessionRecord{SessionID: id, TxnNum: 1, LastWriteOpTime: opTimeAt(1)}

	err := UpdateSessionRecord(context.Background(), store, id, rec, nil)
	require.NoError(t, err)

	got, err := store.FindOne(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, rec, *got)
}

func TestUpdateSessionRecord_ReplacesMatchingExisting(t *testing.T) {
	store := newMemoryStore()
	id := NewLogicalSessionID()
	first := SessionRecord{SessionID: id, TxnNum: 1, LastWriteOpTime: opTimeAt(1)}
	require.NoError(t, UpdateSessionRecord(context.Background(), store, id, first, nil))

	second := SessionRecord{SessionID: id, TxnNum: 1, LastWriteOpTime: opTimeAt(2)}
	err := UpdateSessionRecord(context.Background(), store, id, second, &first)
	require.NoError(t, err)

	got, err := store.FindOne(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, second, *got)
}

func TestUpdateSessionRecord_WriteConflictWhenExistingStale(t *testing.T) {
	store := newMemoryStore()
	id := NewLogicalSessionID()
	first := SessionRecord{SessionID: id, TxnNum: 1, LastWriteOpTime: opTimeAt(1)}
	require.NoError(t, UpdateSessionRecord(context.Background(), store, id, first, nil))

	concurrentWinner := SessionRecord{SessionID: id, TxnNum: 1, LastWriteOpTime: opTimeAt(2)}
	require.NoError(t, UpdateSessionRecord(context.Background(), store, id, concurrentWinner, &first))

	stale := SessionRecord{SessionID: id, TxnNum: 1, LastWriteOpTime: opTimeAt(3)}
	err := UpdateSessionRecord(context.Background(), store, id, stale, &first)
	assert.ErrorIs(t, err, ErrWriteConflict)
}

func TestUpdateSessionRecord_WrongSessionIDIsFatal(t *testing.T) {
	store := newMemoryStore()
	id := NewLogicalSessionID()
	other := NewLogicalSessionID()
	rec := SessionRecord{SessionID: other, TxnNum: 1}

	assert.Panics(t, func() {
		_ = UpdateSessionRecord(context.Background(), store, id, rec, nil)
	})
}

func TestUpdateSessionRecord_RegressingTxnNumIsFatal(t *testing.T) {
	store := newMemoryStore()
	id := NewLogicalSessionID()
	existing := SessionRecord{SessionID: id, TxnNum: 5}
	rec := SessionRecord{SessionID: id, TxnNum: 4}

	assert.Panics(t, func() {
		_ = UpdateSessionRecord(context.Background(), store, id, rec, &existing)
	})
}
