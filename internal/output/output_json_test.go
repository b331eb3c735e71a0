package output

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tkjaer/latgraph/internal/probe"
	"github.com/tkjaer/latgraph/internal/shared"
)

func TestNewJSONOutput_Stdout(t *testing.T) {
	output, err := NewJSONOutput("")
	if err != nil {
		t.Fatalf("NewJSONOutput() error = %v", err)
	}
	defer output.Close()

	if !output.toStdout {
		t.Error("NewJSONOutput(\"\") should output to stdout")
	}
	if output.file != os.Stdout {
		t.Error("NewJSONOutput(\"\") file should be os.Stdout")
	}
}

func TestNewJSONOutput_BadPath(t *testing.T) {
	if _, err := NewJSONOutput(filepath.Join(t.TempDir(), "missing", "out.json")); err == nil {
		t.Error("NewJSONOutput() in a missing directory should fail")
	}
}

func readJSONLines(t *testing.T, filename string) []map[string]any {
	t.Helper()
	f, err := os.Open(filename)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("json.Unmarshal(%q) error = %v", scanner.Text(), err)
		}
		lines = append(lines, m)
	}
	return lines
}

func TestJSONOutput_UpdateSample(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "samples.json")
	output, err := NewJSONOutput(filename)
	if err != nil {
		t.Fatalf("NewJSONOutput() error = %v", err)
	}

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	stats := shared.LatencyStats{Sent: 3, Received: 1, Lost: 1}

	// Outstanding, then received, then lost.
	output.UpdateSample(shared.Sample{Seq: 0, SentAt: t0}, stats)
	output.UpdateSample(shared.Sample{Seq: 0, SentAt: t0, ReceivedAt: t0.Add(20 * time.Millisecond), Latency: 20000}, stats)
	output.UpdateSample(shared.Sample{Seq: 1, SentAt: t0, Lost: true}, stats)
	output.Close()

	lines := readJSONLines(t, filename)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2 (outstanding samples are skipped)", len(lines))
	}
	if lines[0]["seq"] != float64(0) || lines[0]["latency"] != float64(20000) || lines[0]["lost"] != false {
		t.Errorf("first line = %v", lines[0])
	}
	if _, ok := lines[1]["received_at"]; ok {
		t.Errorf("lost sample should omit received_at: %v", lines[1])
	}
	if lines[1]["lost"] != true {
		t.Errorf("second line = %v, want lost", lines[1])
	}
	statsOut, ok := lines[1]["stats"].(map[string]any)
	if !ok || statsOut["sent"] != float64(3) {
		t.Errorf("stats = %v", lines[1]["stats"])
	}
}

func TestJSONOutput_ReportError(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "errors.json")
	output, err := NewJSONOutput(filename)
	if err != nil {
		t.Fatalf("NewJSONOutput() error = %v", err)
	}
	output.ReportError(probe.ErrorKindHostResolution, errors.New("no such host"))
	output.ReportError(probe.ErrorKindHostResolution, nil)
	output.Close()

	lines := readJSONLines(t, filename)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0]["error"] != "no such host" || lines[0]["kind"] != "host_resolution" {
		t.Errorf("first line = %v", lines[0])
	}
	if lines[1]["error"] != "host_resolution" {
		t.Errorf("nil error line = %v, want kind as message", lines[1])
	}
}

func TestJSONOutput_Close_Stdout(t *testing.T) {
	output, err := NewJSONOutput("")
	if err != nil {
		t.Fatalf("NewJSONOutput() error = %v", err)
	}

	// Closing stdout output should not error
	if err := output.Close(); err != nil {
		t.Errorf("Close() for stdout error = %v, want nil", err)
	}
}

func TestJSONOutput_Close_File(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "test_close.json")

	output, err := NewJSONOutput(filename)
	if err != nil {
		t.Fatalf("NewJSONOutput() error = %v", err)
	}

	if err := output.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	// File should be closed, writing should fail
	if _, err := output.file.Write([]byte("test")); err == nil {
		t.Error("Writing to closed file should error")
	}
}
