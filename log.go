package sessiontxn

import "go.uber.org/zap"

// newDefaultLogger returns the logger used when a Manager is not given one
// explicitly: a no-op logger, matching the principle that a library should
// never force its logging configuration onto an embedding application.
func newDefaultLogger() *zap.Logger {
	return zap.NewNop()
}
