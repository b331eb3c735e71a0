package output

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/tkjaer/latgraph/internal/probe"
	"github.com/tkjaer/latgraph/internal/shared"
)

// JSONOutput writes one line per completed or lost sample to a file or stdout
type JSONOutput struct {
	mu       sync.Mutex
	file     *os.File
	enc      *json.Encoder
	toStdout bool
}

type jsonSample struct {
	shared.Sample
	Stats shared.LatencyStats `json:"stats"`
}

type jsonError struct {
	Error     string          `json:"error"`
	Kind      probe.ErrorKind `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewJSONOutput(filename string) (*JSONOutput, error) {
	if filename == "" {
		// Output to stdout
		return &JSONOutput{
			file:     os.Stdout,
			enc:      json.NewEncoder(os.Stdout),
			toStdout: true,
		}, nil
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &JSONOutput{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

func (j *JSONOutput) UpdateSample(sample shared.Sample, stats shared.LatencyStats) {
	// Outstanding probes are written once they resolve
	if !sample.Received() && !sample.Lost {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_ = j.enc.Encode(jsonSample{Sample: sample, Stats: stats})
}

func (j *JSONOutput) ReportError(kind probe.ErrorKind, err error) {
	msg := string(kind)
	if err != nil {
		msg = err.Error()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_ = j.enc.Encode(jsonError{Error: msg, Kind: kind, Timestamp: time.Now()})
}

func (j *JSONOutput) Close() error {
	if j.toStdout {
		return nil
	}
	return j.file.Close()
}
