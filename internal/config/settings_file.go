package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tkjaer/latgraph/internal/probe"
)

// settingsFile is the on-disk form of probe.Settings
type settingsFile struct {
	Remote   string `yaml:"remote"`
	Interval string `yaml:"interval"`
	Running  bool   `yaml:"running"`
}

// DefaultSettingsPath returns latgraph/config.yaml in the user config
// directory, or "" when there is none
func DefaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "latgraph", "config.yaml")
}

// LoadSettings reads the settings file. A missing file yields the defaults.
func LoadSettings(path string) (probe.Settings, error) {
	s := probe.DefaultSettings()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings %q: %w", path, err)
	}

	var f settingsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return s, fmt.Errorf("parse settings %q: %w", path, err)
	}

	s.Remote = f.Remote
	s.Running = f.Running
	if f.Interval != "" {
		interval, err := time.ParseDuration(f.Interval)
		if err != nil {
			return probe.DefaultSettings(), fmt.Errorf("parse settings %q: interval: %w", path, err)
		}
		s.Interval = interval
	}
	return s, nil
}

// SaveSettings writes the settings file through a temporary file
func SaveSettings(path string, s probe.Settings) error {
	if path == "" {
		return nil
	}
	data, err := yaml.Marshal(settingsFile{
		Remote:   s.Remote,
		Interval: s.PollingInterval().String(),
		Running:  s.Running,
	})
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("ensure settings dir %q: %w", dir, err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write temp settings %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit settings %q: %w", path, err)
	}
	return nil
}
