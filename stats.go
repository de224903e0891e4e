package sessiontxn

import "time"

// SingleTransactionStats tracks the duration and active/inactive accounting
// of one multi-statement transaction (C7, present on a Session iff it is
// currently operating in multi-statement mode, per §3).
type SingleTransactionStats struct {
	startTime time.Time
	endTime   time.Time

	active            bool
	activeSince       time.Time
	lastInactiveSince time.Time
	timeActive        time.Duration
	timeInactive      time.Duration
}

func newSingleTransactionStats(now time.Time) *SingleTransactionStats {
	return &SingleTransactionStats{startTime: now}
}

// MarkActive records that the transaction has become active (a command is
// executing against it), accruing inactive time since the last transition.
func (s *SingleTransactionStats) MarkActive(now time.Time) {
	if s.active {
		return
	}
	s.timeInactive += now.Sub(s.lastTransition())
	s.active = true
	s.activeSince = now
}

// MarkInactive records that the transaction has been stashed between
// network round trips, accruing active time since it last became active.
func (s *SingleTransactionStats) MarkInactive(now time.Time) {
	if !s.active {
		return
	}
	s.timeActive += now.Sub(s.activeSince)
	s.active = false
	s.lastInactiveSince = now
}

func (s *SingleTransactionStats) lastTransition() time.Time {
	if !s.lastInactiveSince.IsZero() {
		return s.lastInactiveSince
	}
	return s.startTime
}

// End marks the transaction finished, for the terminal duration reported by
// transactionInfoForLog.
func (s *SingleTransactionStats) End(now time.Time) {
	if s.active {
		s.MarkInactive(now)
	}
	s.endTime = now
}

// StashedStateReport is the shape reportStashedState emits (§6 Reporting):
// a report describing a transaction that is currently parked between
// commands.
type StashedStateReport struct {
	Description      string                 `json:"desc"`
	Parameters       TransactionParameters  `json:"parameters"`
	ReadTimestamp    Timestamp              `json:"readTimestamp"`
	StartWallClock   time.Time              `json:"startWallClockTime"`
	TimeOpenMicros   int64                  `json:"timeOpenMicros"`
	TimeActiveMicros int64                  `json:"timeActiveMicros"`
	TimeInactiveMicros int64                `json:"timeInactiveMicros"`
	WaitingForLock   bool                   `json:"waitingForLock"`
	Active           bool                   `json:"active"`
}

// UnstashedStateReport is the shape reportUnstashedState emits: only the
// transaction's parameters sub-object, with no timing fields, produced only
// when no TxnResources is currently stashed.
type UnstashedStateReport struct {
	Parameters TransactionParameters `json:"parameters"`
}

// TransactionParameters mirrors the `parameters` sub-object of both reports.
type TransactionParameters struct {
	TxnNumber   TxnNumber `json:"txnNumber"`
	Autocommit  bool      `json:"autocommit"`
	ReadConcern string    `json:"readConcern"`
}

// TransactionLogLine is the single-line slow-transaction log record
// produced by transactionInfoForLog: the reporting fields above plus a
// termination cause and aggregate lock stats.
type TransactionLogLine struct {
	StashedStateReport
	TerminationCause string `json:"terminationCause"`
}

func reportStashedState(now time.Time, readTS Timestamp, params TransactionParameters, stats *SingleTransactionStats) StashedStateReport {
	return StashedStateReport{
		Description:        "inactive transaction",
		Parameters:         params,
		ReadTimestamp:      readTS,
		StartWallClock:     stats.startTime,
		TimeOpenMicros:     now.Sub(stats.startTime).Microseconds(),
		TimeActiveMicros:   stats.timeActive.Microseconds(),
		TimeInactiveMicros: stats.timeInactive.Microseconds(),
		WaitingForLock:     false,
		Active:             false,
	}
}

func transactionInfoForLog(now time.Time, readTS Timestamp, params TransactionParameters, stats *SingleTransactionStats, cause string) TransactionLogLine {
	return TransactionLogLine{
		StashedStateReport: reportStashedState(now, readTS, params, stats),
		TerminationCause:   cause,
	}
}
