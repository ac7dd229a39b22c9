package ingest

import (
	"context"
	"fmt"
	"log/slog"
)

// TopicHandler processes one message on one topic. A non-nil error marks the
// message failed; it never tears down the connection.
type TopicHandler func(ctx context.Context, payload []byte) error

// Router dispatches inbound messages to per-topic handlers and keeps the
// throughput counters. A handler error is counted and logged; routing always
// continues with the next message.
type Router struct {
	handlers map[string]TopicHandler
	taps     []func(topic string, payload []byte)
	stats    *Stats
	logger   *slog.Logger
}

// NewRouter creates a router with no handlers registered.
func NewRouter(stats *Stats, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		handlers: make(map[string]TopicHandler),
		stats:    stats,
		logger:   logger,
	}
}

// Handle registers the handler for a topic, replacing any previous one.
// Registration happens before the subscription starts; the map is read-only
// afterwards.
func (r *Router) Handle(topic string, h TopicHandler) {
	r.handlers[topic] = h
}

// AddTap registers an observer that sees every inbound message before it is
// handled, regardless of handler outcome. Taps must not block; like Handle,
// registration happens before the subscription starts.
func (r *Router) AddTap(tap func(topic string, payload []byte)) {
	r.taps = append(r.taps, tap)
}

// Dispatch routes one message. The received counters are bumped
// unconditionally, before any parsing, so malformed traffic is still visible
// in the per-topic counts. A message on an unregistered topic is a no-op:
// the stream subjects are wildcards, so stray device subjects arrive here
// and must not inflate the error counter.
func (r *Router) Dispatch(ctx context.Context, topic string, payload []byte) {
	r.stats.MessageReceived(topic)

	for _, tap := range r.taps {
		tap(topic, payload)
	}

	h, ok := r.handlers[topic]
	if !ok {
		r.stats.MessageProcessed()
		r.logger.Debug("message on unhandled topic", "topic", topic)
		return
	}

	if err := r.safeHandle(ctx, h, payload); err != nil {
		r.stats.MessageFailed()
		r.logger.Error("message handling failed",
			"topic", topic,
			"error", err,
			"payload", truncate(payload, 100))
		return
	}

	r.stats.MessageProcessed()
}

// safeHandle converts a handler panic into an error so one poison message
// cannot take down the consumer loop.
func (r *Router) safeHandle(ctx context.Context, h TopicHandler, payload []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h(ctx, payload)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
