package probe

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"golang.org/x/time/rate"
)

const (
	// receiveBufferSize leaves room to detect oversized payloads
	receiveBufferSize = 64
	receiveErrorPause = 50 * time.Millisecond
)

// listener forwards every decoded reply to the collector
type listener struct {
	transport Transport
	stats     chan<- Event
	logger    *slog.Logger
	now       func() time.Time
	limiter   *rate.Limiter
}

func newListener(t Transport, stats chan<- Event, logger *slog.Logger, now func() time.Time) *listener {
	return &listener{
		transport: t,
		stats:     stats,
		logger:    logger,
		now:       now,
		limiter:   rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

func (l *listener) run(ctx context.Context) error {
	buf := make([]byte, receiveBufferSize)
	for {
		n, err := l.transport.Receive(buf)
		received := l.now()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				l.logger.Debug("Stopping reply listener")
				return nil
			}
			if l.limiter.Allow() {
				l.logger.Warn("Error receiving reply", "error", err)
			}
			select {
			case <-time.After(receiveErrorPause):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		seq, err := DecodeSequence(buf[:n])
		if err != nil {
			if l.limiter.Allow() {
				l.logger.Warn("Ignoring malformed reply", "length", n, "error", err)
			}
			continue
		}

		ev := Event{
			Type: EventReceived,
			Data: &EventDataReceived{Seq: seq, Timestamp: received},
		}
		if !emit(ctx, l.stats, ev) {
			return nil
		}
	}
}
