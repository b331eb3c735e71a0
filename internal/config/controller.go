package config

import (
	"log/slog"
	"sync"

	"github.com/tkjaer/latgraph/internal/probe"
)

// SettingsReceiver is the engine side of the settings channel
type SettingsReceiver interface {
	UpdateSettings(probe.Settings) error
}

// Controller owns the foreground copy of the settings. Every change is
// validated, handed to the engine and saved to the settings file.
type Controller struct {
	mu      sync.Mutex
	current probe.Settings

	engine SettingsReceiver
	path   string // settings file, "" when saving is disabled
	logger *slog.Logger
}

// NewController creates a controller. Changes are saved to path unless it
// is empty.
func NewController(engine SettingsReceiver, initial probe.Settings, path string, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		current: initial,
		engine:  engine,
		path:    path,
		logger:  logger,
	}
}

// Current returns the latest accepted settings
func (c *Controller) Current() probe.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Running reports whether probing is enabled
func (c *Controller) Running() bool {
	return c.Current().Running
}

// Publish hands the current settings to the engine without saving them
func (c *Controller) Publish() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.UpdateSettings(c.current)
}

// Apply validates s, hands it to the engine and saves it
func (c *Controller) Apply(s probe.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.engine.UpdateSettings(s); err != nil {
		return err
	}
	c.current = s
	c.logger.Info("Settings changed", "running", s.Running, "remote", s.Remote, "interval", s.PollingInterval())

	if err := SaveSettings(c.path, s); err != nil {
		c.logger.Error("Couldn't save settings", "error", err)
	}
	return nil
}

// Stopped records that the engine stopped probing remote on its own after
// a fatal error, so the foreground shows it paused. It is ignored when the
// remote has been changed since.
func (c *Controller) Stopped(remote string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if probe.NormalizeAddress(c.current.Remote) != remote {
		c.logger.Debug("Ignoring fatal error for a previous remote", "remote", remote, "current", c.current.Remote)
		return
	}
	c.current.Running = false
}
