package history

import (
	"errors"
	"iter"
	"time"
)

// DefaultCapacity is the number of records kept when no capacity is configured
const DefaultCapacity = 1000

var (
	// ErrEvicted is returned for sequence numbers older than the oldest live record
	ErrEvicted = errors.New("sequence number was evicted")
	// ErrNotSent is returned for replies to a probe that was never sent
	ErrNotSent = errors.New("sequence number not yet sent")
	// ErrDuplicate is returned when a record has already been completed
	ErrDuplicate = errors.New("duplicate reply")
	// ErrOutOfRange is returned by At for sequence numbers outside the live range
	ErrOutOfRange = errors.New("sequence number out of range")
)

// State of a single probe record
type State uint8

const (
	StateSent State = iota + 1
	StateReceived
)

func (s State) String() string {
	switch s {
	case StateSent:
		return "sent"
	case StateReceived:
		return "received"
	default:
		return "unknown"
	}
}

// Record holds the timing of one probe
type Record struct {
	Seq     uint64
	State   State
	SentAt  time.Time
	Latency time.Duration // only meaningful when State == StateReceived
}

// Received reports whether a reply has been recorded
func (r Record) Received() bool {
	return r.State == StateReceived
}

// History is a fixed capacity ring of probe records addressed by sequence
// number. Live sequence numbers always form the range [Start, Start+Len).
// It is not safe for concurrent use; callers keep a single writer.
type History struct {
	records []Record
	head    int    // slot holding the record with sequence number start
	start   uint64 // oldest live sequence number
	length  int
}

// New creates a History holding at most capacity records
func New(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{
		records: make([]Record, capacity),
	}
}

// Cap returns the maximum number of records kept
func (h *History) Cap() int {
	return len(h.records)
}

// Len returns the number of live records
func (h *History) Len() int {
	return h.length
}

// Start returns the oldest live sequence number
func (h *History) Start() uint64 {
	return h.start
}

// Next returns the sequence number the next RecordSent will assign
func (h *History) Next() uint64 {
	return h.start + uint64(h.length)
}

func (h *History) slot(seq uint64) int {
	return (h.head + int(seq-h.start)) % len(h.records)
}

// RecordSent appends a Sent record, evicting the oldest when full, and
// returns the assigned sequence number.
func (h *History) RecordSent(now time.Time) uint64 {
	seq := h.Next()
	if h.length == len(h.records) {
		// The slot of the oldest record becomes the slot of the newest one.
		h.records[h.head] = Record{Seq: seq, State: StateSent, SentAt: now}
		h.head = (h.head + 1) % len(h.records)
		h.start++
		return seq
	}
	h.records[h.slot(seq)] = Record{Seq: seq, State: StateSent, SentAt: now}
	h.length++
	return seq
}

// RecordReceived completes the record for seq and returns its latency.
// Replies for evicted, unsent or already completed records leave the history
// untouched and return ErrEvicted, ErrNotSent or ErrDuplicate.
func (h *History) RecordReceived(seq uint64, now time.Time) (time.Duration, error) {
	switch {
	case seq >= h.Next():
		return 0, ErrNotSent
	case seq < h.start:
		return 0, ErrEvicted
	}

	r := &h.records[h.slot(seq)]
	if r.State == StateReceived {
		return r.Latency, ErrDuplicate
	}
	latency := max(now.Sub(r.SentAt), 0)
	r.State = StateReceived
	r.Latency = latency
	return latency, nil
}

// At returns the record for seq
func (h *History) At(seq uint64) (Record, error) {
	if seq < h.start || seq >= h.Next() {
		return Record{}, ErrOutOfRange
	}
	return h.records[h.slot(seq)], nil
}

// All iterates live records from oldest to newest
func (h *History) All() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for i := range h.length {
			if !yield(h.records[(h.head+i)%len(h.records)]) {
				return
			}
		}
	}
}

// Backward iterates live records from newest to oldest
func (h *History) Backward() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for i := h.length - 1; i >= 0; i-- {
			if !yield(h.records[(h.head+i)%len(h.records)]) {
				return
			}
		}
	}
}

// Snapshot is a copy of the live records, oldest first
type Snapshot struct {
	Start    uint64
	Capacity int
	Records  []Record
}

// Snapshot copies the live records
func (h *History) Snapshot() Snapshot {
	records := make([]Record, 0, h.length)
	for r := range h.All() {
		records = append(records, r)
	}
	return Snapshot{
		Start:    h.start,
		Capacity: len(h.records),
		Records:  records,
	}
}
