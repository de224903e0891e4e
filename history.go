package sessiontxn

import (
	"context"

	"github.com/cockroachdb/errors"
)

// ActiveTransactionHistory is the result of walking a session's durable
// record backwards through the oplog (§4.2).
type ActiveTransactionHistory struct {
	LastRecord          *SessionRecord
	CommittedStatements map[StmtID]OpTime
	TransactionCommitted bool
	HasIncompleteHistory bool
}

// LoadActiveTransactionHistory reads id's tail record from store and walks
// the oplog chain backwards from its lastWriteOpTime, following each
// entry's PrevOpTime, to rebuild the committed-statement map (§4.2). It runs
// without holding the Session Core mutex; callers install its result under
// the mutex (see Session.RefreshFromStorageIfNeeded).
func LoadActiveTransactionHistory(ctx context.Context, store SessionRecordStore, oplog OplogReader, id LogicalSessionID) (ActiveTransactionHistory, error) {
	var hist ActiveTransactionHistory
	hist.CommittedStatements = make(map[StmtID]OpTime)

	rec, err := store.FindOne(ctx, id)
	if err != nil {
		return hist, errors.Wrap(err, "reading session record")
	}
	if rec == nil {
		return hist, nil
	}
	hist.LastRecord = rec

	firstOpTime := make(map[StmtID]OpTime)
	opTime := rec.LastWriteOpTime
	for !opTime.IsZero() {
		entry, err := oplog.Entry(ctx, opTime)
		if err != nil {
			if errors.Is(err, ErrIncompleteTransactionHistory) {
				hist.HasIncompleteHistory = true
				break
			}
			return hist, errors.Wrap(err, "walking oplog chain")
		}

		if entry.StmtID == IncompleteHistoryStmtID {
			if !entry.IsDeadEnd() {
				assertionFailed("oplog entry at %v claims IncompleteHistoryStmtID but is not the dead-end sentinel", opTime)
			}
			hist.HasIncompleteHistory = true
			opTime = entry.PrevOpTime
			continue
		}

		if first, ok := firstOpTime[entry.StmtID]; ok {
			assertionFailed("duplicate stmtId %d for session %s txn %d: first committed at %v, again at %v",
				entry.StmtID, id, entry.TxnNumber, first, entry.OpTime)
		}
		firstOpTime[entry.StmtID] = entry.OpTime
		hist.CommittedStatements[entry.StmtID] = entry.OpTime

		if entry.IsApplyOps {
			hist.TransactionCommitted = true
		}

		opTime = entry.PrevOpTime
	}

	return hist, nil
}
