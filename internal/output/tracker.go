package output

import (
	"context"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/tkjaer/latgraph/internal/history"
	"github.com/tkjaer/latgraph/internal/probe"
	"github.com/tkjaer/latgraph/internal/shared"
)

// DefaultLossTimeout is how long a probe may go unanswered before it is
// drawn as lost
const DefaultLossTimeout = time.Second

type TrackerConfig struct {
	Session     string
	Capacity    int // samples kept for late replies, history.DefaultCapacity when zero
	LossTimeout time.Duration
	Logger      *slog.Logger

	// Called from the tracker goroutine
	OnFatal     func(*probe.EventDataFatal)
	OnConnected func(*probe.EventDataConnected)
}

// Tracker turns engine events into samples and aggregate stats and fans
// them out to the registered outputs
type Tracker struct {
	manager *OutputManager
	cfg     TrackerConfig
	logger  *slog.Logger

	samples map[uint64]*shared.Sample
	stats   shared.LatencyStats
	remote  string

	outstanding *ttlcache.Cache[uint64, time.Time]
	expired     chan uint64
	done        chan struct{}
}

func NewTracker(manager *OutputManager, cfg TrackerConfig) *Tracker {
	if cfg.Capacity <= 0 {
		cfg.Capacity = history.DefaultCapacity
	}
	if cfg.LossTimeout <= 0 {
		cfg.LossTimeout = DefaultLossTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	t := &Tracker{
		manager: manager,
		cfg:     cfg,
		logger:  cfg.Logger,
		samples: make(map[uint64]*shared.Sample),
		outstanding: ttlcache.New(
			ttlcache.WithTTL[uint64, time.Time](cfg.LossTimeout),
		),
		expired: make(chan uint64, 100),
		done:    make(chan struct{}),
	}
	t.outstanding.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[uint64, time.Time]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		select {
		case t.expired <- item.Key():
		case <-t.done:
		}
	})
	return t
}

// Run consumes events until the channel is closed or ctx is done
func (t *Tracker) Run(ctx context.Context, events <-chan probe.Event) error {
	go t.outstanding.Start()
	defer t.outstanding.Stop()
	defer close(t.done)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.logger.Debug("Event channel closed, stopping tracker")
				return nil
			}
			t.handle(ev)
		case seq := <-t.expired:
			t.markLost(seq)
		case <-ctx.Done():
			return nil
		}
	}
}

func (t *Tracker) handle(ev probe.Event) {
	switch ev.Type {
	case probe.EventSent:
		if data, ok := ev.Data.(*probe.EventDataSent); ok {
			t.onSent(data)
		}
	case probe.EventReceived:
		if data, ok := ev.Data.(*probe.EventDataReceived); ok {
			t.onReceived(data)
		}
	case probe.EventDuplicate:
		t.stats.AddDuplicate()
	case probe.EventConnected:
		if data, ok := ev.Data.(*probe.EventDataConnected); ok {
			t.remote = data.Remote
			if t.cfg.OnConnected != nil {
				t.cfg.OnConnected(data)
			}
		}
	case probe.EventFatal:
		if data, ok := ev.Data.(*probe.EventDataFatal); ok {
			t.logger.Error("Probing stopped", "kind", data.Kind, "remote", data.Remote, "error", data.Err)
			t.manager.ReportError(data.Kind, data.Err)
			if t.cfg.OnFatal != nil {
				t.cfg.OnFatal(data)
			}
		}
	default:
		t.logger.Debug("Unknown probe event type", "type", ev.Type)
	}
}

func (t *Tracker) onSent(data *probe.EventDataSent) {
	sample := &shared.Sample{
		Seq:     data.Seq,
		Session: t.cfg.Session,
		Remote:  t.remote,
		SentAt:  data.Timestamp,
	}
	t.samples[data.Seq] = sample
	if data.Seq >= uint64(t.cfg.Capacity) {
		old := data.Seq - uint64(t.cfg.Capacity)
		delete(t.samples, old)
		t.outstanding.Delete(old)
	}
	t.outstanding.Set(data.Seq, data.Timestamp, ttlcache.DefaultTTL)
	t.stats.AddSent()
	t.manager.UpdateSample(*sample, t.stats)
}

func (t *Tracker) onReceived(data *probe.EventDataReceived) {
	sample, ok := t.samples[data.Seq]
	if !ok {
		t.logger.Debug("Reply for untracked probe", "seq", data.Seq)
		return
	}
	t.outstanding.Delete(data.Seq)

	rtt := data.Latency.Microseconds()
	sample.ReceivedAt = data.Timestamp
	sample.Latency = rtt
	if sample.Lost {
		t.logger.Debug("Late reply revises lost probe", "seq", data.Seq, "latency", data.Latency)
		sample.Lost = false
		sample.Late = true
		t.stats.ReviseLost(rtt)
	} else {
		t.stats.AddLatency(rtt)
	}
	t.manager.UpdateSample(*sample, t.stats)
}

func (t *Tracker) markLost(seq uint64) {
	sample, ok := t.samples[seq]
	if !ok || sample.Received() || sample.Lost {
		return
	}
	sample.Lost = true
	t.stats.AddLost()
	t.manager.UpdateSample(*sample, t.stats)
}
