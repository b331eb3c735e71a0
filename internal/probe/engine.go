package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tkjaer/latgraph/internal/history"
)

// ErrEngineClosed is returned by Snapshot once the engine has stopped
var ErrEngineClosed = errors.New("engine stopped")

// DefaultEventBuffer is the size of the foreground event channel
const DefaultEventBuffer = 100

// Config configures an Engine
type Config struct {
	Capacity     int    // history capacity, history.DefaultCapacity when zero
	LocalAddress string // local bind address, ephemeral when empty
	// Transport replaces the UDP socket, mostly for tests
	Transport    Transport
	RetryBackoff time.Duration
	EventBuffer  int
	Logger       *slog.Logger
	Clock        func() time.Time
}

// Engine runs the measurement for one session: the sender loop, the reply
// listener and the collector that owns the sample history.
type Engine struct {
	transport Transport
	history   *history.History
	queue     *settingsQueue
	stats     chan Event
	events    chan Event
	snapshots chan chan history.Snapshot
	done      chan struct{}

	session uuid.UUID
	backoff time.Duration
	logger  *slog.Logger
	now     func() time.Time
	limiter *rate.Limiter

	runOnce sync.Once
}

// New creates an engine. Binding the local socket is the only startup
// failure.
func New(cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}

	t := cfg.Transport
	if t == nil {
		udp, err := ListenUDP(cfg.LocalAddress, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("start probe engine: %w", err)
		}
		t = udp
	}

	session := uuid.New()
	return &Engine{
		transport: t,
		history:   history.New(cfg.Capacity),
		queue:     newSettingsQueue(),
		stats:     make(chan Event, cfg.EventBuffer),
		events:    make(chan Event, cfg.EventBuffer),
		snapshots: make(chan chan history.Snapshot),
		done:      make(chan struct{}),
		session:   session,
		backoff:   cfg.RetryBackoff,
		logger:    cfg.Logger.With("session", session.String()),
		now:       cfg.Clock,
		limiter:   rate.NewLimiter(rate.Every(time.Second), 5),
	}, nil
}

// Session identifies this measurement session
func (e *Engine) Session() uuid.UUID {
	return e.session
}

// Events delivers foreground notifications. It is closed when Run returns.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// UpdateSettings hands a new snapshot to the sender loop. It never blocks.
func (e *Engine) UpdateSettings(s Settings) error {
	return e.queue.Push(s)
}

// Close asks the engine to stop. Run returns once every goroutine is done.
func (e *Engine) Close() {
	e.queue.Close()
}

// Snapshot returns a copy of the sample history
func (e *Engine) Snapshot(ctx context.Context) (history.Snapshot, error) {
	reply := make(chan history.Snapshot, 1)
	select {
	case e.snapshots <- reply:
	case <-e.done:
		return history.Snapshot{}, ErrEngineClosed
	case <-ctx.Done():
		return history.Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return history.Snapshot{}, ctx.Err()
	}
}

// Run blocks until Close is called or ctx is cancelled. It may only be
// called once.
func (e *Engine) Run(ctx context.Context) error {
	started := false
	e.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("engine already started")
	}

	s := &sender{
		transport: e.transport,
		queue:     e.queue,
		stats:     e.stats,
		backoff:   e.backoff,
		logger:    e.logger.With("component", "sender"),
		limiter:   rate.NewLimiter(rate.Every(time.Second), 5),
		now:       e.now,
	}
	l := newListener(e.transport, e.stats, e.logger.With("component", "listener"), e.now)

	e.logger.Debug("Starting probe engine")

	var producers sync.WaitGroup
	producers.Add(2)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer producers.Done()
		defer e.transport.Close()
		return s.run(gctx)
	})
	g.Go(func() error {
		defer producers.Done()
		return l.run(gctx)
	})
	g.Go(func() error {
		producers.Wait()
		close(e.stats)
		return nil
	})
	g.Go(func() error {
		defer close(e.done)
		defer close(e.events)
		e.collect(gctx)
		return nil
	})

	err := g.Wait()
	e.queue.Close()
	e.logger.Debug("Probe engine stopped", "sent", e.history.Next())
	return err
}

// collect is the only writer of the history. Sent and received events
// share one channel, so a probe is always recorded before its reply.
func (e *Engine) collect(ctx context.Context) {
	for {
		select {
		case ev, ok := <-e.stats:
			if !ok {
				return
			}
			if forward, keep := e.record(ev); keep {
				emit(ctx, e.events, forward)
			}
		case reply := <-e.snapshots:
			reply <- e.history.Snapshot()
		}
	}
}

// record applies ev to the history and returns the event for the foreground
func (e *Engine) record(ev Event) (Event, bool) {
	switch ev.Type {
	case EventSent:
		data, ok := ev.Data.(*EventDataSent)
		if !ok {
			return ev, false
		}
		if seq := e.history.RecordSent(data.Timestamp); seq != data.Seq {
			e.logger.Error("Sequence number mismatch", "sender", data.Seq, "history", seq)
			data.Seq = seq
		}
		return ev, true

	case EventReceived:
		data, ok := ev.Data.(*EventDataReceived)
		if !ok {
			return ev, false
		}
		latency, err := e.history.RecordReceived(data.Seq, data.Timestamp)
		switch {
		case err == nil:
			data.Latency = latency
			return ev, true
		case errors.Is(err, history.ErrDuplicate):
			if e.limiter.Allow() {
				e.logger.Warn("Duplicate reply", "seq", data.Seq)
			}
			data.Latency = latency
			return Event{Type: EventDuplicate, Data: data}, true
		case errors.Is(err, history.ErrNotSent):
			if e.limiter.Allow() {
				e.logger.Warn("Reply for a probe that was never sent", "seq", data.Seq, "next", e.history.Next())
			}
		case errors.Is(err, history.ErrEvicted):
			e.logger.Debug("Reply for an evicted probe", "seq", data.Seq, "start", e.history.Start())
		default:
			e.logger.Warn("Couldn't record reply", "seq", data.Seq, "error", err)
		}
		return ev, false

	default:
		return ev, true
	}
}
