package sessiontxn

import (
	"time"

	"github.com/google/uuid"
)

// LogicalSessionID opaquely identifies a client session.
type LogicalSessionID struct {
	UUID uuid.UUID
}

// NewLogicalSessionID mints a fresh, random session id.
func NewLogicalSessionID() LogicalSessionID {
	return LogicalSessionID{UUID: uuid.New()}
}

func (id LogicalSessionID) String() string {
	return id.UUID.String()
}

// TxnNumber is a monotone per-session counter identifying the current
// retryable write or multi-statement transaction.
type TxnNumber int64

// UninitializedTxnNumber is the sentinel value of activeTxnNumber before any
// txn number has ever been observed for a session.
const UninitializedTxnNumber TxnNumber = -1

// StmtID identifies a single write within a transaction.
type StmtID int32

// IncompleteHistoryStmtID is the sentinel statement id marking a dead-end
// entry in the oplog chain: the embedded object is the DeadEndSentinel
// rather than a real write.
const IncompleteHistoryStmtID StmtID = -1

// OpTime is a position in the replicated oplog.
type OpTime struct {
	Timestamp time.Time
	Term      int64
}

// Before reports whether ot occurs earlier than other.
func (ot OpTime) Before(other OpTime) bool {
	if ot.Term != other.Term {
		return ot.Term < other.Term
	}
	return ot.Timestamp.Before(other.Timestamp)
}

// IsZero reports whether ot is the zero OpTime.
func (ot OpTime) IsZero() bool {
	return ot.Timestamp.IsZero() && ot.Term == 0
}

// MaxOpTime returns whichever of a, b sorts later.
func MaxOpTime(a, b OpTime) OpTime {
	if a.Before(b) {
		return b
	}
	return a
}
