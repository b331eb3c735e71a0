package output

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tkjaer/latgraph/internal/probe"
	"github.com/tkjaer/latgraph/internal/shared"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsSendBuffer   = 64
)

// wsMessage is the frame broadcast to stream clients
type wsMessage struct {
	Type   string               `json:"type"` // "sample" or "error"
	Sample *shared.Sample       `json:"sample,omitempty"`
	Stats  *shared.LatencyStats `json:"stats,omitempty"`
	Kind   probe.ErrorKind      `json:"kind,omitempty"`
	Error  string               `json:"error,omitempty"`
}

type wsClient struct {
	send chan []byte
}

// WebsocketOutput broadcasts every sample change to connected websocket
// clients. Slow clients miss frames rather than stall the tracker.
type WebsocketOutput struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

func NewWebsocketOutput(logger *slog.Logger) *WebsocketOutput {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebsocketOutput{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

func (w *WebsocketOutput) UpdateSample(sample shared.Sample, stats shared.LatencyStats) {
	w.broadcast(wsMessage{Type: "sample", Sample: &sample, Stats: &stats})
}

func (w *WebsocketOutput) ReportError(kind probe.ErrorKind, err error) {
	msg := wsMessage{Type: "error", Kind: kind}
	if err != nil {
		msg.Error = err.Error()
	}
	w.broadcast(msg)
}

func (w *WebsocketOutput) broadcast(msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		w.logger.Warn("Couldn't encode stream message", "error", err)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for c := range w.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Clients returns the number of connected clients
func (w *WebsocketOutput) Clients() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.clients)
}

func (w *WebsocketOutput) register(c *wsClient) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.clients[c] = struct{}{}
	return true
}

func (w *WebsocketOutput) unregister(c *wsClient) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.clients[c]; ok {
		delete(w.clients, c)
		close(c.send)
	}
}

// ServeHTTP upgrades the request and streams messages until the client
// goes away or the output is closed
func (w *WebsocketOutput) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Debug("Websocket upgrade failed", "error", err)
		return
	}
	client := &wsClient{send: make(chan []byte, wsSendBuffer)}
	if !w.register(client) {
		conn.Close()
		return
	}
	w.logger.Debug("Stream client connected", "remote", r.RemoteAddr)

	var closeOnce sync.Once
	done := make(chan struct{})
	cleanup := func() {
		closeOnce.Do(func() {
			close(done)
			w.unregister(client)
			conn.Close()
			w.logger.Debug("Stream client disconnected", "remote", r.RemoteAddr)
		})
	}

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	// Reader only services control frames
	go func() {
		defer cleanup()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer cleanup()
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case data, ok := <-client.send:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(wsWriteWait))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}
	}()
}

// Close disconnects every client
func (w *WebsocketOutput) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for c := range w.clients {
		delete(w.clients, c)
		close(c.send)
	}
	return nil
}
