package sessiontxn

import "time"

// SessionRecord is the durable row maintained per session in the
// session-records collection (§6 Persisted state).
type SessionRecord struct {
	SessionID     LogicalSessionID `json:"sessionId"`
	TxnNum        TxnNumber        `json:"txnNum"`
	LastWriteOpTime OpTime         `json:"lastWriteOpTime"`
	LastWriteDate   time.Time      `json:"lastWriteDate"`
}

// deadEndSentinel is the fixed object recorded in an oplog entry's secondary
// object field when stmtId == IncompleteHistoryStmtID, marking a point
// where the chain was truncated before the caller's point of interest.
type deadEndSentinel struct {
	IncompleteOplogHistory int `json:"$incompleteOplogHistory"`
}

// DeadEndSentinel is the canonical dead-end marker value (§6).
var DeadEndSentinel = deadEndSentinel{IncompleteOplogHistory: 1}

// OplogEntry is the subset of a replicated oplog entry this module reads:
// enough to walk the back-linked chain of a session's writes and to
// reconstruct committedStatements (§4.2).
type OplogEntry struct {
	OpTime     OpTime      `json:"ts"`
	PrevOpTime OpTime      `json:"prevOpTime"`
	SessionID  LogicalSessionID `json:"lsid"`
	TxnNumber  TxnNumber   `json:"txnNumber"`
	StmtID     StmtID      `json:"stmtId"`
	IsApplyOps bool        `json:"-"`

	// Object carries the dead-end sentinel when StmtID ==
	// IncompleteHistoryStmtID; otherwise it is the statement's own payload,
	// which this module never inspects (statement content lives in the
	// oplog, out of scope per §1 Non-goals).
	Object interface{} `json:"o"`
}

// IsDeadEnd reports whether e is a truncation marker rather than a real
// committed statement.
func (e OplogEntry) IsDeadEnd() bool {
	if e.StmtID != IncompleteHistoryStmtID {
		return false
	}
	sentinel, ok := e.Object.(deadEndSentinel)
	return ok && sentinel == DeadEndSentinel
}
