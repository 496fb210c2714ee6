// Package pdulog is the process-wide structured logging slot that the TCP and
// WebSocket comms, the mux, Endpoint and Container log lifecycle events and
// swallowed errors through; the UDP and SHM comms do not log. It follows the
// same settable-external-collaborator pattern as comm.SetTimeSource and
// comm.SetShmRuntime rather than threading a
// logger through every constructor: the host process installs a logger once
// at startup, before opening anything.
package pdulog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop().Sugar()
)

// Set installs the process-wide logger. Passing nil restores the no-op
// default, which is also what every package sees before Set is ever called.
func Set(l *zap.SugaredLogger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop().Sugar()
	}
	logger = l
}

// L returns the current process-wide logger.
func L() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
