//go:build !linux

package probe

import "log/slog"

func raiseThreadPriority(logger *slog.Logger) {
	logger.Debug("Thread priority hint not supported on this platform")
}
