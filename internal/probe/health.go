package probe

import (
	"net"
	"time"
)

// DefaultRetryBackoff is the delay before re-binding a previously good remote
const DefaultRetryBackoff = 3 * time.Second

type failureAction int

const (
	// actionFatal: the address never worked, report it and stop probing
	actionFatal failureAction = iota
	// actionRetry: the address worked before, keep probing and re-bind later
	actionRetry
)

// connectionHealth is owned by the sender loop
type connectionHealth struct {
	remote        string   // normalized address this record describes
	bound         net.Addr // nil until a bind succeeded
	everSucceeded bool     // a transmit to remote completed since it was set
	retryAt       time.Time
}

// reset starts tracking a new remote
func (h *connectionHealth) reset(remote string) {
	*h = connectionHealth{remote: remote}
}

func (h *connectionHealth) bind(addr net.Addr) {
	h.bound = addr
	h.retryAt = time.Time{}
}

// markSuccess records a completed transmit and clears any pending retry
func (h *connectionHealth) markSuccess() {
	h.everSucceeded = true
	h.retryAt = time.Time{}
}

// onFailure classifies a bind or transmit failure. A pending retry is kept
// rather than pushed back, so repeated failures still retry on schedule.
func (h *connectionHealth) onFailure(now time.Time, backoff time.Duration) failureAction {
	if !h.everSucceeded {
		return actionFatal
	}
	if h.retryAt.IsZero() {
		h.retryAt = now.Add(backoff)
	}
	return actionRetry
}

func (h *connectionHealth) retryDue(now time.Time) bool {
	return !h.retryAt.IsZero() && !now.Before(h.retryAt)
}

// nextProbeTime paces probes from the previous target rather than from now,
// so scheduling jitter doesn't accumulate. A target already in the past
// (sleep, heavy lag) restarts from now instead of sending a burst.
func nextProbeTime(prev, now time.Time, interval time.Duration) time.Time {
	next := prev.Add(interval)
	if next.Before(now) {
		return now.Add(interval)
	}
	return next
}
