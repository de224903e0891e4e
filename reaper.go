package sessiontxn

import (
	"container/heap"
	"time"

	"go.uber.org/zap"
)

// expiryQueue orders sessions by their active transaction's expire date,
// earliest first. Adapted from the teacher's priorityQueue (readyTime-
// ordered *CleanupRequest heap); here it orders *Session by
// transactionExpireDate instead.
type expiryQueue []*Session

func (q expiryQueue) Len() int { return len(q) }

func (q expiryQueue) Less(i, j int) bool {
	return q[i].ExpireDate().Before(q[j].ExpireDate())
}

func (q expiryQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *expiryQueue) Push(x interface{}) {
	*q = append(*q, x.(*Session))
}

func (q *expiryQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[0 : n-1]
	return item
}

// reaper periodically aborts multi-statement transactions whose
// transactionExpireDate has passed (§5 Cancellation and timeout (b)).
// Grounded on the teacher's lostcleanup.go ticker-driven background
// goroutine, re-targeted from ATR polling to a session-record expiry sweep.
type reaper struct {
	manager      *Manager
	pollInterval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

func newReaper(m *Manager, pollInterval time.Duration) *reaper {
	return &reaper{
		manager:      m,
		pollInterval: pollInterval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// start launches the background sweep and returns a function that stops it
// and blocks until the goroutine has exited.
func (r *reaper) start() func() {
	go r.run()
	return func() {
		close(r.stopCh)
		<-r.doneCh
	}
}

func (r *reaper) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}

func (r *reaper) sweep(now time.Time) {
	var q expiryQueue
	for _, s := range r.manager.snapshotSessions() {
		if ed := s.ExpireDate(); !ed.IsZero() {
			q = append(q, s)
		}
	}
	heap.Init(&q)

	for q.Len() > 0 {
		s := q[0]
		if s.ExpireDate().After(now) {
			// Earliest remaining deadline hasn't passed yet; nothing later
			// in the heap has either.
			return
		}
		heap.Pop(&q)
		wasInProgress := s.State() == TxnStateInProgress
		s.AbortArbitraryTransactionIfExpired(now)
		if wasInProgress && s.State() == TxnStateAborted && r.manager.log != nil {
			r.manager.log.Info("aborted expired transaction",
				zap.Stringer("session", s.ID()),
				zap.Int64("txnNumber", int64(s.ActiveTxnNumber())),
			)
		}
	}
}
