package sessiontxn

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// User-facing error kinds surfaced at the command-dispatch boundary (§6).
// These never mutate session state when returned, with the one documented
// exception of NoSuchTransaction after an implicit abort of a stuck
// first-command transaction.
var (
	// ErrTransactionTooOld is returned when txnNumber < activeTxnNumber.
	ErrTransactionTooOld = errors.New("TransactionTooOld")

	// ErrNoSuchTransaction is returned for operations against a transaction
	// that does not exist, has been aborted, or never completed its first
	// command.
	ErrNoSuchTransaction = errors.New("NoSuchTransaction")

	// ErrTransactionCommitted is returned for any command other than
	// commitTransaction sent against an already-committed transaction.
	ErrTransactionCommitted = errors.New("TransactionCommitted")

	// ErrTransactionTooLarge is returned when transactionOperationBytes
	// would exceed MaxInternalDocumentSize.
	ErrTransactionTooLarge = errors.New("TransactionTooLarge")

	// ErrConflictingOperationInProgress is returned when startTransaction is
	// requested for a txnNumber that is already the active txn number.
	ErrConflictingOperationInProgress = errors.New("ConflictingOperationInProgress")

	// ErrOperationNotSupportedInTransaction is returned for commands (e.g.
	// count) that are forbidden inside any multi-statement transaction.
	ErrOperationNotSupportedInTransaction = errors.New("OperationNotSupportedInTransaction")

	// ErrInvalidOptions is returned for mismatched option combinations, such
	// as autocommit supplied on a retryable-write continuation, or calling
	// commitUnpreparedTransaction on a Prepared transaction.
	ErrInvalidOptions = errors.New("InvalidOptions")

	// ErrIncompleteTransactionHistory is returned when the committed
	// statement map cannot answer a checkStatementExecuted query because the
	// oplog chain was truncated before reaching it.
	ErrIncompleteTransactionHistory = errors.New("IncompleteTransactionHistory")

	// ErrWriteConflict signals the durable writer's CAS-style failure: the
	// session record changed underneath the read snapshot. The caller must
	// retry under a new snapshot.
	ErrWriteConflict = errors.New("WriteConflict")
)

// AssertionFailedError marks an invariant violation: a condition the design
// treats as unrecoverable data corruption or a programming bug, never a
// retryable or user-facing failure. The original terminates the host
// process on these; a Go library cannot do that on a caller's behalf, so it
// panics with this type instead. Callers are expected to let the panic
// crash the process rather than recover and continue.
type AssertionFailedError struct {
	msg string
}

func (e *AssertionFailedError) Error() string {
	return e.msg
}

// assertionFailed panics with an *AssertionFailedError built from the
// cockroachdb/errors assertion-failure helper, which records a stack trace
// suitable for a crash report.
func assertionFailed(format string, args ...interface{}) {
	err := errors.AssertionFailedf(format, args...)
	panic(&AssertionFailedError{msg: fmt.Sprintf("%+v", err)})
}
