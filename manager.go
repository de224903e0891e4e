package sessiontxn

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Manager owns every Session Core in the process, keyed by logical session
// id, and the collaborators shared across all of them: the Config, the
// durable store, the oplog reader, metrics, and (if enabled) the reaper.
// Grounded on the teacher's transactions.go Manager/Init, which plays the
// same "one object, shared config, lazily-created per-key state" role for
// Couchbase attempts.
type Manager struct {
	mu       sync.Mutex
	sessions map[LogicalSessionID]*Session

	cfg     Config
	store   SessionRecordStore
	oplog   OplogReader
	metrics *Metrics
	log     *zap.Logger

	reaper *reaper
}

// WithLogger replaces the Manager's logger, which otherwise defaults to a
// no-op logger. Returns m for chaining.
func (m *Manager) WithLogger(logger *zap.Logger) *Manager {
	m.log = logger
	return m
}

// NewManager validates cfg and constructs a Manager. If cfg.CleanupLostAttempts-
// style background sweeping is desired, call StartReaper separately —
// mirroring the teacher's own Config.CleanupLostAttempts toggle, which is
// likewise a separate opt-in rather than bundled into construction.
func NewManager(cfg Config, store SessionRecordStore, oplog OplogReader, reg prometheus.Registerer) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var metrics *Metrics
	if reg != nil {
		metrics = NewMetrics(reg)
	}
	return &Manager{
		sessions: make(map[LogicalSessionID]*Session),
		cfg:      cfg,
		store:    store,
		oplog:    oplog,
		metrics:  metrics,
		log:      newDefaultLogger(),
	}, nil
}

// Checkout returns the Session Core for id, lazily creating it on first
// use (§3 Lifecycle). The caller is responsible for ensuring at most one
// checkout of a given session is concurrently driving its state machine
// (§5); Checkout itself only protects the sessions map.
func (m *Manager) Checkout(id LogicalSessionID) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := NewSession(id, m.cfg, m.store, m.oplog, m.metrics)
	m.sessions[id] = s
	return s
}

// Invalidate invalidates the session for id, e.g. on external kill. The
// session stays tracked, matching the "next checkout refreshes it" contract
// of §5 (c).
func (m *Manager) Invalidate(id LogicalSessionID) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		s.Invalidate()
	}
}

// Evict removes id's Session Core entirely, for use by the session-catalog
// eviction this module doesn't itself implement (§1 Out of scope).
func (m *Manager) Evict(id LogicalSessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// snapshotSessions returns the current set of tracked sessions, for the
// reaper's sweep.
func (m *Manager) snapshotSessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// StartReaper launches the background expiry sweep (§5 Cancellation and
// timeout (b)) and returns a stop function. Grounded on the teacher's
// lostcleanup.go ticker/goroutine shape.
func (m *Manager) StartReaper(pollInterval time.Duration) func() {
	r := newReaper(m, pollInterval)
	m.reaper = r
	return r.start()
}
