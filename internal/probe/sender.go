package probe

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// sender paces probes to the remote. It is the only owner of the running
// state: the foreground informs it through settings snapshots.
type sender struct {
	transport Transport
	queue     *settingsQueue
	stats     chan<- Event
	backoff   time.Duration
	logger    *slog.Logger
	limiter   *rate.Limiter // throttles retry warnings
	now       func() time.Time

	settings Settings
	health   connectionHealth
	seq      uint64
	next     time.Time
}

func (s *sender) run(ctx context.Context) error {
	raiseThreadPriority(s.logger)
	s.settings = DefaultSettings()

	for {
		if s.settings.Running {
			if !s.probe(ctx) || (s.settings.Running && !s.pace(ctx)) {
				break
			}
			continue
		}

		set, ok := s.queue.Recv(ctx)
		if !ok {
			break
		}
		// Coalesce anything queued behind it
		pending, open := s.queue.Drain()
		if !open {
			break
		}
		if len(pending) > 0 {
			set = pending[len(pending)-1]
		}
		s.settings = set
		s.next = s.now()
		if !s.apply(ctx) {
			break
		}
	}

	s.logger.Debug("Stopping sender loop", "sent", s.seq)
	return nil
}

// pace sleeps until the next probe target, applying settings that arrive
// in the meantime. A pause or a new remote ends the sleep, a new interval
// moves the target.
func (s *sender) pace(ctx context.Context) bool {
	last := s.next
	s.next = nextProbeTime(last, s.now(), s.settings.PollingInterval())

	for {
		woken, ok := s.wait(ctx)
		if !ok {
			return false
		}
		pending, open := s.queue.Drain()
		if !open {
			return false
		}
		if len(pending) > 0 {
			remote := s.health.remote
			s.settings = pending[len(pending)-1]
			if !s.apply(ctx) {
				return false
			}
			switch {
			case !s.settings.Running:
				return true
			case s.health.remote != remote:
				s.next = s.now()
				return true
			default:
				s.next = nextProbeTime(last, s.now(), s.settings.PollingInterval())
			}
		}
		if !woken {
			return true
		}
	}
}

// apply reacts to a new settings snapshot
func (s *sender) apply(ctx context.Context) bool {
	s.logger.Debug("Received new settings",
		"running", s.settings.Running,
		"remote", s.settings.Remote,
		"interval", s.settings.PollingInterval(),
	)

	remote := NormalizeAddress(s.settings.Remote)
	if remote == "" {
		if s.settings.Running {
			s.logger.Info("No remote address set, pausing probes")
		}
		s.settings.Running = false
		s.health.reset("")
		return true
	}

	if remote == s.health.remote && (s.health.bound != nil || !s.settings.Running) {
		return true
	}

	s.logger.Info("Connecting to new host", "remote", remote)
	s.health.reset(remote)
	return s.connect(ctx)
}

// connect (re)binds the transport to the tracked remote
func (s *sender) connect(ctx context.Context) bool {
	addr, err := s.transport.Connect(s.health.remote)
	if err != nil {
		return s.fail(ctx, "Couldn't connect to host", err)
	}
	s.health.bind(addr)
	s.logger.Debug("Bound transport", "remote", s.health.remote, "addr", addr)
	return emit(ctx, s.stats, Event{
		Type: EventConnected,
		Data: &EventDataConnected{Remote: s.health.remote, Addr: addr},
	})
}

// probe sends one probe, recording it before it reaches the transport
func (s *sender) probe(ctx context.Context) bool {
	if s.health.retryDue(s.now()) {
		s.logger.Info("Retrying connection", "remote", s.health.remote)
		s.health.retryAt = time.Time{}
		if !s.connect(ctx) {
			return false
		}
	}

	seq := s.seq
	s.seq++
	sent := emit(ctx, s.stats, Event{
		Type: EventSent,
		Data: &EventDataSent{Seq: seq, Timestamp: s.now()},
	})
	if !sent {
		return false
	}

	if err := s.transport.Send(EncodeSequence(seq)); err != nil {
		return s.fail(ctx, "Couldn't send probe", err)
	}
	s.health.markSuccess()
	return true
}

// fail applies the reconnection policy to a bind or transmit error
func (s *sender) fail(ctx context.Context, msg string, err error) bool {
	switch s.health.onFailure(s.now(), s.backoff) {
	case actionRetry:
		if s.limiter.Allow() {
			s.logger.Warn(msg, "remote", s.health.remote, "error", err, "retry_at", s.health.retryAt)
		}
		return true
	default:
		s.logger.Error(msg, "remote", s.health.remote, "error", err)
		s.settings.Running = false
		return emit(ctx, s.stats, Event{
			Type: EventFatal,
			Data: &EventDataFatal{Kind: ErrorKindHostResolution, Remote: s.health.remote, Err: err},
		})
	}
}

// wait sleeps until the probe target. The first result is true when a
// settings update cut the sleep short.
func (s *sender) wait(ctx context.Context) (bool, bool) {
	timer := time.NewTimer(s.next.Sub(s.now()))
	defer timer.Stop()

	select {
	case <-timer.C:
		return false, true
	case <-s.queue.Ready():
		return true, true
	case <-s.queue.Done():
		return false, false
	case <-ctx.Done():
		return false, false
	}
}
