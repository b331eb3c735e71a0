package output

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tkjaer/latgraph/internal/probe"
	"github.com/tkjaer/latgraph/internal/shared"
)

// MetricsOutput exports session counters as Prometheus metrics
type MetricsOutput struct {
	sent        prometheus.Counter
	received    prometheus.Counter
	duplicates  prometheus.Counter
	lateReplies prometheus.Counter
	lost        prometheus.Gauge
	lossPct     prometheus.Gauge
	lastLatency prometheus.Gauge
	latency     prometheus.Histogram
	fatal       *prometheus.CounterVec

	mu   sync.Mutex
	prev shared.LatencyStats
}

// NewMetricsOutput creates the metrics and registers them with reg
func NewMetricsOutput(reg prometheus.Registerer) (*MetricsOutput, error) {
	m := &MetricsOutput{
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "latgraph_probes_sent_total",
			Help: "Total number of probes sent",
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "latgraph_replies_total",
			Help: "Total number of replies matched to a probe",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "latgraph_duplicate_replies_total",
			Help: "Total number of duplicate replies",
		}),
		lateReplies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "latgraph_late_replies_total",
			Help: "Replies that arrived after the probe was declared lost",
		}),
		lost: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "latgraph_probes_lost",
			Help: "Number of probes currently considered lost",
		}),
		lossPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "latgraph_loss_percent",
			Help: "Percentage of resolved probes that were lost",
		}),
		lastLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "latgraph_last_latency_seconds",
			Help: "Round-trip time of the most recent reply",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "latgraph_latency_seconds",
			Help:    "Round-trip time distribution",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		fatal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "latgraph_fatal_errors_total",
			Help: "Fatal probe errors by kind",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{
		m.sent, m.received, m.duplicates, m.lateReplies,
		m.lost, m.lossPct, m.lastLatency, m.latency, m.fatal,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *MetricsOutput) UpdateSample(sample shared.Sample, stats shared.LatencyStats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if stats.Sent > m.prev.Sent {
		m.sent.Add(float64(stats.Sent - m.prev.Sent))
	}
	if stats.Duplicates > m.prev.Duplicates {
		m.duplicates.Add(float64(stats.Duplicates - m.prev.Duplicates))
	}
	if stats.Received > m.prev.Received {
		m.received.Add(float64(stats.Received - m.prev.Received))
		if sample.Received() {
			seconds := (time.Duration(sample.Latency) * time.Microsecond).Seconds()
			m.latency.Observe(seconds)
			m.lastLatency.Set(seconds)
		}
		if sample.Late {
			m.lateReplies.Inc()
		}
	}
	m.lost.Set(float64(stats.Lost))
	m.lossPct.Set(stats.LossPct)
	m.prev = stats
}

func (m *MetricsOutput) ReportError(kind probe.ErrorKind, err error) {
	m.fatal.WithLabelValues(string(kind)).Inc()
}

func (m *MetricsOutput) Close() error {
	return nil
}
