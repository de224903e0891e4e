package sessiontxn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerCheckoutIsLazyAndStable(t *testing.T) {
	mgr, err := NewManager(DefaultConfig(), newMemoryStore(), newMemoryOplog(), nil)
	require.NoError(t, err)

	id := NewLogicalSessionID()
	s1 := mgr.Checkout(id)
	s2 := mgr.Checkout(id)
	assert.Same(t, s1, s2)
}

func TestManagerInvalidateMarksSessionStale(t *testing.T) {
	mgr, err := NewManager(DefaultConfig(), newMemoryStore(), newMemoryOplog(), nil)
	require.NoError(t, err)

	id := NewLogicalSessionID()
	s := mgr.Checkout(id)
	require.NoError(t, s.RefreshFromStorageIfNeeded(context.Background()))
	assert.True(t, s.IsValid())

	mgr.Invalidate(id)
	assert.False(t, s.IsValid())
}

func TestManagerEvictForgetsSession(t *testing.T) {
	mgr, err := NewManager(DefaultConfig(), newMemoryStore(), newMemoryOplog(), nil)
	require.NoError(t, err)

	id := NewLogicalSessionID()
	s1 := mgr.Checkout(id)
	mgr.Evict(id)
	s2 := mgr.Checkout(id)
	assert.NotSame(t, s1, s2)
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TransactionLifetimeLimit = 0
	_, err := NewManager(cfg, newMemoryStore(), newMemoryOplog(), nil)
	assert.Error(t, err)
}
