package sessiontxn

import (
	"context"

	"github.com/cockroachdb/errors"
)

// UpdateSessionRecord performs the replacement upsert of the session's row
// in the session-records collection (C6, §4.6). existing is the record
// previously read for this session (nil if none existed yet); the store is
// expected to fail with ErrWriteConflict if the document has moved out from
// under that read, so the caller can retry under a new snapshot, preserving
// at-most-once semantics.
func UpdateSessionRecord(ctx context.Context, store SessionRecordStore, id LogicalSessionID, newRecord SessionRecord, existing *SessionRecord) error {
	if newRecord.SessionID != id {
		assertionFailed("UpdateSessionRecord: record session id %s does not match %s", newRecord.SessionID, id)
	}
	if existing != nil && existing.TxnNum > newRecord.TxnNum {
		assertionFailed("UpdateSessionRecord: existing txnNum %d exceeds new txnNum %d for session %s", existing.TxnNum, newRecord.TxnNum, id)
	}

	if err := store.Upsert(ctx, newRecord, existing); err != nil {
		if errors.Is(err, ErrWriteConflict) {
			return err
		}
		return errors.Wrap(err, "upserting session record")
	}
	return nil
}
