package shared

import (
	"math"
	"time"
)

// Sample is the foreground view of one probe
type Sample struct {
	Seq        uint64    `json:"seq"`
	Session    string    `json:"session"`
	Remote     string    `json:"remote"`
	SentAt     time.Time `json:"sent_at"`
	ReceivedAt time.Time `json:"received_at,omitzero"`
	Latency    int64     `json:"latency"` // RTT in microseconds, 0 unless received
	Lost       bool      `json:"lost"`
	Late       bool      `json:"late,omitempty"` // reply arrived after the probe was declared lost
}

// Received reports whether a reply has been seen
func (s Sample) Received() bool {
	return !s.ReceivedAt.IsZero()
}

// Holds aggregate latency stats for the session
type LatencyStats struct {
	Min        int64   `json:"min"`         // RTT in microseconds
	Max        int64   `json:"max"`         // RTT in microseconds
	Avg        int64   `json:"avg"`         // RTT in microseconds
	Last       int64   `json:"last"`        // Last RTT in microseconds
	StdDev     float64 `json:"stddev"`      // RTT standard deviation in microseconds
	Sent       uint    `json:"sent"`        // Number of probes sent
	Received   uint    `json:"received"`    // Number of replies
	Lost       uint    `json:"lost"`        // Number of probes currently considered lost
	Duplicates uint    `json:"duplicates"`  // Number of duplicate replies
	LossPct    float64 `json:"loss_pct"`    // Percentage loss of resolved probes
	Sum        int64   `json:"sum"`         // Sum of RTTs for calculating average
	SumSquares int64   `json:"sum_squares"` // Sum of squares for stddev calculation
}

// OutputInfo describes the measurement for output headers
type OutputInfo struct {
	Remote   string
	Session  string
	Interval time.Duration
	Capacity int
}

func (s *LatencyStats) AddSent() {
	s.Sent++
}

// AddLatency records a reply with an RTT in microseconds
func (s *LatencyStats) AddLatency(rtt int64) {
	if s.Received == 0 || rtt < s.Min {
		s.Min = rtt
	}
	if rtt > s.Max {
		s.Max = rtt
	}
	s.Last = rtt
	s.Received++
	s.Sum += rtt
	s.SumSquares += rtt * rtt
	s.Avg = s.Sum / int64(s.Received)
	s.StdDev = calculateStdDev(s.Sum, s.SumSquares, s.Received)
	s.LossPct = calculateLossPct(s.Lost, s.Received)
}

func (s *LatencyStats) AddLost() {
	s.Lost++
	s.LossPct = calculateLossPct(s.Lost, s.Received)
}

// ReviseLost turns an earlier loss into a reply
func (s *LatencyStats) ReviseLost(rtt int64) {
	if s.Lost > 0 {
		s.Lost--
	}
	s.AddLatency(rtt)
}

func (s *LatencyStats) AddDuplicate() {
	s.Duplicates++
}

func calculateStdDev(sum int64, sumSquares int64, n uint) float64 {
	if n == 0 {
		return 0
	}
	mean := float64(sum) / float64(n)
	variance := float64(sumSquares)/float64(n) - mean*mean
	if variance < 0 {
		variance = 0 // Prevent negative due to floating point errors
	}
	return math.Sqrt(variance)
}

func calculateLossPct(lost, received uint) float64 {
	total := lost + received
	if total == 0 {
		return 0
	}
	return float64(lost) / float64(total) * 100
}
