package sessiontxn

import (
	"time"

	"github.com/pkg/errors"
)

// Config specifies the server parameters that govern every Session Core
// managed by a Manager (§6 Server parameters).
type Config struct {
	// MaxTransactionLockRequestTimeout bounds how long a lock request inside
	// a multi-statement transaction may wait before failing with a
	// lock-timeout error. Negative disables the bound entirely.
	MaxTransactionLockRequestTimeout time.Duration

	// TransactionLifetimeLimit is how long a multi-statement transaction may
	// remain open before the reaper aborts it. Must be at least one second.
	TransactionLifetimeLimit time.Duration

	// Internal holds options for internal use only, mirroring the teacher's
	// own escape hatch for injecting test hooks.
	// Internal: This should never be used and is not supported.
	Internal struct {
		Hooks Hooks
	}
}

// DefaultConfig returns the documented defaults: a 5ms lock-request timeout
// and a 60s transaction lifetime limit.
func DefaultConfig() Config {
	return Config{
		MaxTransactionLockRequestTimeout: 5 * time.Millisecond,
		TransactionLifetimeLimit:         60 * time.Second,
	}
}

// Validate rejects a TransactionLifetimeLimit under one second, the sole
// validated server parameter per §6.
func (c Config) Validate() error {
	if c.TransactionLifetimeLimit < time.Second {
		return errors.Errorf("transactionLifetimeLimitSeconds must be >= 1, got %s", c.TransactionLifetimeLimit)
	}
	return nil
}

func (c Config) hooks() Hooks {
	if c.Internal.Hooks != nil {
		return c.Internal.Hooks
	}
	return DefaultHooks{}
}
