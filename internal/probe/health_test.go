package probe

import (
	"net"
	"testing"
	"time"
)

func TestNextProbeTime(t *testing.T) {
	base := time.Now()
	interval := 100 * time.Millisecond

	tests := []struct {
		name string
		prev time.Time
		now  time.Time
		want time.Time
	}{
		{
			name: "on schedule",
			prev: base,
			now:  base.Add(2 * time.Millisecond),
			want: base.Add(interval),
		},
		{
			name: "woke up late but target still ahead",
			prev: base,
			now:  base.Add(90 * time.Millisecond),
			want: base.Add(interval),
		},
		{
			name: "target exactly now",
			prev: base,
			now:  base.Add(interval),
			want: base.Add(interval),
		},
		{
			name: "target already passed",
			prev: base,
			now:  base.Add(5 * time.Second),
			want: base.Add(5*time.Second + interval),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextProbeTime(tt.prev, tt.now, interval); !got.Equal(tt.want) {
				t.Errorf("nextProbeTime() = %v, want %v", got.Sub(base), tt.want.Sub(base))
			}
		})
	}
}

// Jitter on every wakeup must not add up over many cycles.
func TestNextProbeTime_NoDrift(t *testing.T) {
	base := time.Now()
	interval := 100 * time.Millisecond
	target := base
	for range 1000 {
		woke := target.Add(3 * time.Millisecond)
		target = nextProbeTime(target, woke, interval)
	}
	if want := base.Add(1000 * interval); !target.Equal(want) {
		t.Errorf("after 1000 cycles target drifted by %v", target.Sub(want))
	}
}

func TestConnectionHealth_NeverSucceeded(t *testing.T) {
	var h connectionHealth
	h.reset("example.org:7")
	now := time.Now()

	if got := h.onFailure(now, DefaultRetryBackoff); got != actionFatal {
		t.Errorf("onFailure() = %v, want actionFatal", got)
	}
	if !h.retryAt.IsZero() {
		t.Error("fatal failure scheduled a retry")
	}
}

func TestConnectionHealth_PreviouslySucceeded(t *testing.T) {
	var h connectionHealth
	h.reset("example.org:7")
	h.bind(&net.UDPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 7})
	h.markSuccess()
	now := time.Now()

	if got := h.onFailure(now, DefaultRetryBackoff); got != actionRetry {
		t.Fatalf("onFailure() = %v, want actionRetry", got)
	}
	if want := now.Add(3 * time.Second); !h.retryAt.Equal(want) {
		t.Errorf("retryAt = %v, want now+3s", h.retryAt.Sub(now))
	}

	// A later failure keeps the original schedule.
	h.onFailure(now.Add(time.Second), DefaultRetryBackoff)
	if want := now.Add(3 * time.Second); !h.retryAt.Equal(want) {
		t.Errorf("retryAt moved to %v after second failure", h.retryAt.Sub(now))
	}

	if h.retryDue(now.Add(2 * time.Second)) {
		t.Error("retryDue() true before backoff elapsed")
	}
	if !h.retryDue(now.Add(3 * time.Second)) {
		t.Error("retryDue() false after backoff elapsed")
	}

	h.markSuccess()
	if h.retryDue(now.Add(time.Hour)) {
		t.Error("markSuccess() did not clear pending retry")
	}
}

func TestConnectionHealth_ResetForgetsSuccess(t *testing.T) {
	var h connectionHealth
	h.reset("a:7")
	h.markSuccess()
	h.reset("b:7")

	if h.everSucceeded || h.bound != nil || h.remote != "b:7" {
		t.Errorf("reset() left state %+v", h)
	}
	if got := h.onFailure(time.Now(), DefaultRetryBackoff); got != actionFatal {
		t.Errorf("onFailure() after reset = %v, want actionFatal", got)
	}
}
