package ingest

import (
	"sync"
	"sync/atomic"
)

// Observer mirrors the counter updates to an external sink, typically a
// metrics registry. Implementations must be safe for concurrent use.
type Observer interface {
	MessageReceived(topic string)
	MessageProcessed()
	MessageFailed()
	DataPointsSaved(n int64)
}

// Stats tracks pipeline throughput counters. The scalar counters are atomics
// so the hot path never takes a lock for them; the per-topic map is guarded
// separately.
type Stats struct {
	received        atomic.Int64
	processed       atomic.Int64
	errors          atomic.Int64
	dataPointsSaved atomic.Int64

	mu      sync.Mutex
	byTopic map[string]int64

	observers []Observer
}

// NewStats creates a zeroed stats tracker.
func NewStats() *Stats {
	return &Stats{
		byTopic: make(map[string]int64),
	}
}

// AddObserver registers a counter sink. Must be called before traffic starts;
// the observer list is read without locking afterwards.
func (s *Stats) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// MessageReceived records an inbound message on a topic. Called before
// dispatch, so received counts malformed and failed messages too.
func (s *Stats) MessageReceived(topic string) {
	s.received.Add(1)

	s.mu.Lock()
	s.byTopic[topic]++
	s.mu.Unlock()

	for _, o := range s.observers {
		o.MessageReceived(topic)
	}
}

// MessageProcessed records a message whose handler completed without error.
func (s *Stats) MessageProcessed() {
	s.processed.Add(1)
	for _, o := range s.observers {
		o.MessageProcessed()
	}
}

// MessageFailed records a message whose handler returned an error.
func (s *Stats) MessageFailed() {
	s.errors.Add(1)
	for _, o := range s.observers {
		o.MessageFailed()
	}
}

// DataPointsSaved records rows successfully written to the store.
func (s *Stats) DataPointsSaved(n int64) {
	s.dataPointsSaved.Add(n)
	for _, o := range s.observers {
		o.DataPointsSaved(n)
	}
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Received        int64            `json:"received"`
	Processed       int64            `json:"processed"`
	Errors          int64            `json:"errors"`
	DataPointsSaved int64            `json:"dataPointsSaved"`
	ByTopic         map[string]int64 `json:"byTopic"`
}

// Snapshot returns a consistent copy of the per-topic map and a near-point
// read of the scalar counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	byTopic := make(map[string]int64, len(s.byTopic))
	for k, v := range s.byTopic {
		byTopic[k] = v
	}
	s.mu.Unlock()

	return StatsSnapshot{
		Received:        s.received.Load(),
		Processed:       s.processed.Load(),
		Errors:          s.errors.Load(),
		DataPointsSaved: s.dataPointsSaved.Load(),
		ByTopic:         byTopic,
	}
}
