package gir

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once

	mergeFallbacks atomic.Int64
)

// Logger returns the gir package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the gir package's logger.
// This must be called before any model is built.
func SetLogger(l *zap.Logger) {
	logger = l
}

// MergeFallbacks returns how many merges kept the first declaration because
// the variants could not be merged.
func MergeFallbacks() int64 {
	return mergeFallbacks.Load()
}
