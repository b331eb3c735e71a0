package probe

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"example.org", "example.org:7"},
		{"example.org:4207", "example.org:4207"},
		{"example.org:", "example.org:7"},
		{"  192.0.2.1  ", "192.0.2.1:7"},
		{"192.0.2.1:4207", "192.0.2.1:4207"},
		{"::1", "[::1]:7"},
		{"[::1]", "[::1]:7"},
		{"[2001:db8::1]:4207", "[2001:db8::1]:4207"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeAddress(tt.remote); got != tt.want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", tt.remote, got, tt.want)
		}
	}
}

func TestSettings_PollingInterval(t *testing.T) {
	tests := []struct {
		interval time.Duration
		want     time.Duration
	}{
		{0, DefaultInterval},
		{-time.Second, DefaultInterval},
		{250 * time.Millisecond, 250 * time.Millisecond},
	}

	for _, tt := range tests {
		s := Settings{Interval: tt.interval}
		if got := s.PollingInterval(); got != tt.want {
			t.Errorf("PollingInterval(%v) = %v, want %v", tt.interval, got, tt.want)
		}
	}
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		wantErr  error
	}{
		{name: "defaults", settings: DefaultSettings()},
		{name: "running with remote", settings: Settings{Running: true, Remote: "example.org", Interval: time.Second}},
		{name: "paused without remote", settings: Settings{Interval: time.Second}},
		{name: "running without remote", settings: Settings{Running: true, Remote: "  "}, wantErr: ErrNoRemote},
		{name: "interval too small", settings: Settings{Remote: "example.org", Interval: time.Microsecond}, wantErr: ErrIntervalTooSmall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings.Validate()
			if tt.wantErr == nil && err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
