package logging

import (
	"sync"

	"github.com/pion/logging"
)

const scopePrefix = "dcamera/"

var (
	mu            sync.RWMutex
	loggerFactory logging.LoggerFactory = logging.NewDefaultLoggerFactory()
)

// NewLogger creates a leveled logger for the given scope. Scopes are prefixed
// with "dcamera/" so PION_LOG_* filters can target this module only.
func NewLogger(scope string) logging.LeveledLogger {
	mu.RLock()
	defer mu.RUnlock()
	return loggerFactory.NewLogger(scopePrefix + scope)
}

// SetLoggerFactory replaces the factory used by subsequent NewLogger calls.
// Loggers that were already created keep their original factory.
func SetLoggerFactory(f logging.LoggerFactory) {
	if f == nil {
		return
	}

	mu.Lock()
	loggerFactory = f
	mu.Unlock()
}
