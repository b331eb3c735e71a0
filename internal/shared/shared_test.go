package shared

import (
	"math"
	"testing"
	"time"
)

func Test_calculateStdDev(t *testing.T) {
	tests := []struct {
		name   string
		values []int64
		want   float64
	}{
		{name: "no samples", values: nil, want: 0},
		{name: "single sample", values: []int64{1500}, want: 0},
		{name: "constant", values: []int64{10, 10, 10}, want: 0},
		{name: "spread", values: []int64{2, 4, 4, 4, 5, 5, 7, 9}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sum, squares int64
			for _, v := range tt.values {
				sum += v
				squares += v * v
			}
			got := calculateStdDev(sum, squares, uint(len(tt.values)))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("calculateStdDev() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_calculateLossPct(t *testing.T) {
	tests := []struct {
		lost, received uint
		want           float64
	}{
		{0, 0, 0},
		{0, 10, 0},
		{1, 9, 10},
		{5, 0, 100},
	}
	for _, tt := range tests {
		if got := calculateLossPct(tt.lost, tt.received); got != tt.want {
			t.Errorf("calculateLossPct(%d, %d) = %v, want %v", tt.lost, tt.received, got, tt.want)
		}
	}
}

func TestLatencyStats(t *testing.T) {
	var s LatencyStats
	for range 4 {
		s.AddSent()
	}
	s.AddLatency(3000)
	s.AddLatency(1000)
	s.AddLost()
	s.AddLatency(2000)

	if s.Sent != 4 || s.Received != 3 || s.Lost != 1 {
		t.Fatalf("counts = sent %d received %d lost %d", s.Sent, s.Received, s.Lost)
	}
	if s.Min != 1000 || s.Max != 3000 || s.Avg != 2000 || s.Last != 2000 {
		t.Errorf("min/max/avg/last = %d/%d/%d/%d, want 1000/3000/2000/2000", s.Min, s.Max, s.Avg, s.Last)
	}
	if s.LossPct != 25 {
		t.Errorf("LossPct = %v, want 25", s.LossPct)
	}

	s.ReviseLost(6000)
	if s.Lost != 0 || s.Received != 4 || s.LossPct != 0 || s.Max != 6000 {
		t.Errorf("after ReviseLost: %+v", s)
	}

	s.AddDuplicate()
	if s.Duplicates != 1 || s.Received != 4 {
		t.Errorf("AddDuplicate changed counts: %+v", s)
	}
}

func TestSample_Received(t *testing.T) {
	s := Sample{Seq: 1, SentAt: time.Now()}
	if s.Received() {
		t.Error("Received() = true for a sample without reply")
	}
	s.ReceivedAt = s.SentAt.Add(time.Millisecond)
	if !s.Received() {
		t.Error("Received() = false after reply")
	}
}
