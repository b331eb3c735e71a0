//go:build linux

package probe

import (
	"log/slog"
	"runtime"

	"golang.org/x/sys/unix"
)

// senderNice is the niceness requested for the sender thread
const senderNice = -10

// raiseThreadPriority pins the calling goroutine to its OS thread and asks
// the scheduler to favour it. Failure (usually missing CAP_SYS_NICE) only
// costs pacing accuracy.
func raiseThreadPriority(logger *slog.Logger) {
	runtime.LockOSThread()
	if err := unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), senderNice); err != nil {
		logger.Debug("Could not raise sender thread priority", "error", err)
		return
	}
	logger.Debug("Raised sender thread priority", "nice", senderNice)
}
