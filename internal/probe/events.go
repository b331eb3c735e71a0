package probe

import (
	"context"
	"net"
	"time"
)

// EventType identifies the kind of engine event
type EventType string

const (
	EventSent      EventType = "sent"
	EventReceived  EventType = "received"
	EventFatal     EventType = "fatal"
	EventConnected EventType = "connected"
	// EventDuplicate reports a reply for an already completed probe. Data is
	// *EventDataReceived carrying the originally recorded latency.
	EventDuplicate EventType = "duplicate"
)

// ErrorKind classifies fatal errors reported to the foreground
type ErrorKind string

const (
	// ErrorKindHostResolution means the remote address never worked
	ErrorKindHostResolution ErrorKind = "host_resolution"
)

// Event is delivered to the foreground on Engine.Events
type Event struct {
	Type EventType
	Data any
}

type EventDataSent struct {
	Seq       uint64
	Timestamp time.Time
}

type EventDataReceived struct {
	Seq       uint64
	Timestamp time.Time
	Latency   time.Duration // filled in once the history accepted the reply
}

type EventDataFatal struct {
	Kind   ErrorKind
	Remote string
	Err    error
}

type EventDataConnected struct {
	Remote string
	Addr   net.Addr
}

// emit delivers ev unless the consumer has gone away
func emit(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
