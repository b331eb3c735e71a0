package probe

import (
	"errors"
	"net"
	"strings"
	"time"
)

const (
	// DefaultEchoPort is used when the remote address has no port
	DefaultEchoPort = "7"
	// DefaultInterval is the polling interval used when none is configured
	DefaultInterval = 100 * time.Millisecond
	// MinInterval is the smallest polling interval accepted by Validate
	MinInterval = time.Millisecond
)

var (
	ErrNoRemote         = errors.New("running requires a remote address")
	ErrIntervalTooSmall = errors.New("polling interval must be at least 1ms")
)

// Settings is a snapshot of the user-facing configuration. The engine keeps
// its own copy and replaces it wholesale when a newer snapshot arrives.
type Settings struct {
	Running  bool
	Remote   string // host[:port], empty disables probing
	Interval time.Duration
}

// DefaultSettings returns a paused configuration with no remote
func DefaultSettings() Settings {
	return Settings{
		Interval: DefaultInterval,
	}
}

// PollingInterval returns the interval, falling back to DefaultInterval
func (s Settings) PollingInterval() time.Duration {
	if s.Interval <= 0 {
		return DefaultInterval
	}
	return s.Interval
}

// Validate checks a snapshot received from an untrusted foreground
func (s Settings) Validate() error {
	switch {
	case s.Running && strings.TrimSpace(s.Remote) == "":
		return ErrNoRemote
	case s.Interval != 0 && s.Interval < MinInterval:
		return ErrIntervalTooSmall
	}
	return nil
}

// NormalizeAddress adds the echo port to addresses that don't carry one.
// Bare and bracketed IPv6 literals are handled.
func NormalizeAddress(remote string) string {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return ""
	}
	if host, port, err := net.SplitHostPort(remote); err == nil {
		if port == "" {
			return net.JoinHostPort(host, DefaultEchoPort)
		}
		return remote
	}
	host := strings.TrimSuffix(strings.TrimPrefix(remote, "["), "]")
	return net.JoinHostPort(host, DefaultEchoPort)
}
