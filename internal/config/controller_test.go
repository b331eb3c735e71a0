package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tkjaer/latgraph/internal/probe"
)

type recordingReceiver struct {
	pushed []probe.Settings
	err    error
}

func (r *recordingReceiver) UpdateSettings(s probe.Settings) error {
	if r.err != nil {
		return r.err
	}
	r.pushed = append(r.pushed, s)
	return nil
}

func TestController_Apply(t *testing.T) {
	engine := &recordingReceiver{}
	path := filepath.Join(t.TempDir(), "config.yaml")
	c := NewController(engine, probe.DefaultSettings(), path, nil)

	next := probe.Settings{Running: true, Remote: "example.org", Interval: 50 * time.Millisecond}
	if err := c.Apply(next); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if c.Current() != next || !c.Running() {
		t.Errorf("Current() = %+v, want %+v", c.Current(), next)
	}
	if len(engine.pushed) != 1 || engine.pushed[0] != next {
		t.Errorf("engine received %+v", engine.pushed)
	}

	saved, err := LoadSettings(path)
	if err != nil || saved != next {
		t.Errorf("saved settings = (%+v, %v), want %+v", saved, err, next)
	}
}

func TestController_ApplyRejected(t *testing.T) {
	tests := []struct {
		name     string
		settings probe.Settings
		wantErr  error
	}{
		{"running without remote", probe.Settings{Running: true}, probe.ErrNoRemote},
		{"interval too small", probe.Settings{Remote: "x", Interval: time.Microsecond}, probe.ErrIntervalTooSmall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &recordingReceiver{}
			c := NewController(engine, probe.DefaultSettings(), "", nil)
			if err := c.Apply(tt.settings); !errors.Is(err, tt.wantErr) {
				t.Errorf("Apply() error = %v, want %v", err, tt.wantErr)
			}
			if len(engine.pushed) != 0 || c.Current() != probe.DefaultSettings() {
				t.Error("rejected settings reached the engine or the controller state")
			}
		})
	}
}

func TestController_EngineStopped(t *testing.T) {
	engine := &recordingReceiver{err: probe.ErrQueueClosed}
	c := NewController(engine, probe.DefaultSettings(), "", nil)

	if err := c.Apply(probe.Settings{Remote: "x"}); !errors.Is(err, probe.ErrQueueClosed) {
		t.Errorf("Apply() error = %v, want ErrQueueClosed", err)
	}
	if c.Current() != probe.DefaultSettings() {
		t.Error("settings changed although the engine rejected them")
	}
}

func TestController_PublishAndStopped(t *testing.T) {
	engine := &recordingReceiver{}
	initial := probe.Settings{Running: true, Remote: "example.org", Interval: time.Second}
	c := NewController(engine, initial, "", nil)

	if err := c.Publish(); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(engine.pushed) != 1 || engine.pushed[0] != initial {
		t.Errorf("Publish() pushed %+v", engine.pushed)
	}

	c.Stopped("example.org:7")
	if c.Running() {
		t.Error("Running() = true after Stopped()")
	}
	if c.Current().Remote != "example.org" {
		t.Error("Stopped() should only clear Running")
	}
}

func TestController_StoppedForPreviousRemote(t *testing.T) {
	engine := &recordingReceiver{}
	c := NewController(engine, probe.Settings{Running: true, Remote: "a.example", Interval: time.Second}, "", nil)

	// The user moved on to b before the fatal error for a arrived.
	if err := c.Apply(probe.Settings{Running: true, Remote: "b.example", Interval: time.Second}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	c.Stopped("a.example:7")
	if !c.Running() {
		t.Error("fatal error for a previous remote paused the current one")
	}

	c.Stopped("b.example:7")
	if c.Running() {
		t.Error("Running() = true after a fatal error for the current remote")
	}
}
