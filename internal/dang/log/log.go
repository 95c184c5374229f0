// Package log installs the process-wide slog logger.
package log

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"dang/internal/logging"
)

var (
	initOnce    sync.Once
	initialized atomic.Bool
	current     *logging.LoggerCloser
)

// Setup makes a charm logger built from opts the slog default. Only the
// first call has an effect; later calls return the same logger.
func Setup(opts logging.Options) *logging.LoggerCloser {
	initOnce.Do(func() {
		current = logging.New(opts)
		if opts.Level == "debug" {
			current.SetReportCaller(true)
		}
		slog.SetDefault(slog.New(current.Logger))
		initialized.Store(true)
	})
	return current
}

// Close closes the log file, if any.
func Close() {
	if current != nil {
		_ = current.Close()
	}
}

func Initialized() bool {
	return initialized.Load()
}

func RecoverPanic(name string, cleanup func()) {
	if r := recover(); r != nil {
		if Initialized() {
			slog.Error(fmt.Sprintf("Panic in %s", name),
				"panic", r,
				"stack", string(debug.Stack()))
		}
		if cleanup != nil {
			cleanup()
		}
	}
}
