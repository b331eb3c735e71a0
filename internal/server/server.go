// Package server exposes the measurement over HTTP: prometheus metrics, the
// websocket sample stream, the sample history and the settings API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tkjaer/latgraph/internal/history"
	"github.com/tkjaer/latgraph/internal/probe"
)

// Config controls HTTP server settings.
type Config struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
}

// SettingsStore is the owner of the current settings
type SettingsStore interface {
	Current() probe.Settings
	Apply(probe.Settings) error
}

// Snapshotter returns a copy of the sample history
type Snapshotter interface {
	Snapshot(ctx context.Context) (history.Snapshot, error)
}

// Dependencies holds the collaborators behind the routes. Routes whose
// dependency is nil are not registered.
type Dependencies struct {
	Logger   *slog.Logger
	Gatherer prometheus.Gatherer
	Stream   http.Handler
	Settings SettingsStore
	History  Snapshotter
}

// Server wraps http.Server for convenience.
type Server struct {
	*http.Server
	deps Dependencies
}

// New constructs the HTTP server
func New(cfg Config, deps Dependencies) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:9108"
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	return &Server{Server: s, deps: deps}
}

// NewRouter builds the route table
func NewRouter(deps Dependencies) *mux.Router {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if deps.Stream != nil {
		r.Handle("/ws", deps.Stream).Methods(http.MethodGet)
	}
	if deps.Settings != nil {
		r.HandleFunc("/api/v1/settings", getSettingsHandler(deps)).Methods(http.MethodGet)
		r.HandleFunc("/api/v1/settings", putSettingsHandler(deps)).Methods(http.MethodPut)
	}
	if deps.History != nil {
		r.HandleFunc("/api/v1/history", historyHandler(deps)).Methods(http.MethodGet)
	}
	return r
}

// Run serves until ctx is done, then shuts the server down
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info("HTTP server listening", "address", s.Addr)
		errCh <- s.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

// settingsBody is the JSON form of probe.Settings. Fields left out of a PUT
// keep their current value.
type settingsBody struct {
	Running  *bool   `json:"running,omitempty"`
	Remote   *string `json:"remote,omitempty"`
	Interval *string `json:"interval,omitempty"` // Go duration, e.g. "100ms"
}

func toBody(s probe.Settings) settingsBody {
	interval := s.PollingInterval().String()
	return settingsBody{Running: &s.Running, Remote: &s.Remote, Interval: &interval}
}

func (b settingsBody) merge(s probe.Settings) (probe.Settings, error) {
	if b.Running != nil {
		s.Running = *b.Running
	}
	if b.Remote != nil {
		s.Remote = probe.NormalizeAddress(*b.Remote)
	}
	if b.Interval != nil {
		d, err := time.ParseDuration(*b.Interval)
		if err != nil {
			return s, err
		}
		s.Interval = d
	}
	return s, nil
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Couldn't encode response", "error", err)
	}
}

func getSettingsHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, deps.Logger, http.StatusOK, toBody(deps.Settings.Current()))
	}
}

func putSettingsHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body settingsBody
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		s, err := body.merge(deps.Settings.Current())
		if err != nil {
			http.Error(w, "invalid interval", http.StatusBadRequest)
			return
		}

		if err := deps.Settings.Apply(s); err != nil {
			switch {
			case errors.Is(err, probe.ErrNoRemote), errors.Is(err, probe.ErrIntervalTooSmall):
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			case errors.Is(err, probe.ErrQueueClosed):
				http.Error(w, "engine stopped", http.StatusServiceUnavailable)
			default:
				deps.Logger.Error("Couldn't apply settings", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, deps.Logger, http.StatusOK, toBody(deps.Settings.Current()))
	}
}

type historyRecord struct {
	Seq     uint64    `json:"seq"`
	State   string    `json:"state"`
	SentAt  time.Time `json:"sent_at"`
	Latency int64     `json:"latency_us,omitempty"`
}

type historyBody struct {
	Start    uint64          `json:"start"`
	Capacity int             `json:"capacity"`
	Records  []historyRecord `json:"records"`
}

func historyHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := deps.History.Snapshot(r.Context())
		if err != nil {
			if errors.Is(err, probe.ErrEngineClosed) {
				http.Error(w, "engine stopped", http.StatusServiceUnavailable)
				return
			}
			http.Error(w, "request cancelled", http.StatusServiceUnavailable)
			return
		}

		body := historyBody{
			Start:    snap.Start,
			Capacity: snap.Capacity,
			Records:  make([]historyRecord, 0, len(snap.Records)),
		}
		for _, rec := range snap.Records {
			hr := historyRecord{Seq: rec.Seq, State: rec.State.String(), SentAt: rec.SentAt}
			if rec.Received() {
				hr.Latency = rec.Latency.Microseconds()
			}
			body.Records = append(body.Records, hr)
		}
		writeJSON(w, deps.Logger, http.StatusOK, body)
	}
}
