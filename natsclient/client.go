// Package natsclient provides a managed NATS connection with explicit
// lifecycle states, capped reconnection, and JetStream consumption.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/biostream/errors"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusClosed
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Error messages
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrClosed       = stderrors.New("client is closed")
)

// Status holds runtime status information for the client
type Status struct {
	Status          ConnectionStatus
	Reconnects      int32
	LastFailureTime time.Time
	RTT             time.Duration
}

// Client manages a NATS connection with a capped-retry lifecycle. The
// underlying nats.go client owns automatic reconnection with a fixed wait
// between attempts; once MaxReconnects consecutive attempts are exhausted the
// connection closes terminally and no further recovery is attempted.
type Client struct {
	url    string
	status atomic.Value // stores ConnectionStatus
	logger Logger

	// NATS connection
	conn *nats.Conn
	js   jetstream.JetStream

	// Consumer management
	consumers   map[string]jetstream.ConsumeContext
	consumersMu sync.Mutex

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	// Authentication - cleared on close
	username string
	password string
	token    string

	// TLS
	tlsCertFile string
	tlsKeyFile  string
	tlsCAFile   string

	// Client identification
	clientName string

	// Reconnect tracking
	reconnects  atomic.Int32
	lastFailure atomic.Value // stores time.Time

	// Callbacks
	onDisconnect     func(error)
	onReconnect      func()
	onConnectionLost func(error)

	// Synchronization
	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a new NATS client with optional configuration
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:    url,
		logger: &defaultLogger{},
		// Defaults match the device-facing broker contract: fixed 5s wait
		// between attempts, 10 consecutive attempts before giving up.
		maxReconnects: 10,
		reconnectWait: 5 * time.Second,
		pingInterval:  30 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  30 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	c.status.Store(StatusDisconnected)
	c.lastFailure.Store(time.Time{})

	c.logger.Debugf("Created NATS client for %s", url)

	return c, nil
}

// URL returns the NATS server URL
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	val := c.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

// IsConnected returns true if the connection is currently established
func (c *Client) IsConnected() bool {
	return c.Status() == StatusConnected
}

// Reconnects returns the number of reconnect attempts observed since the
// last successful connection.
func (c *Client) Reconnects() int32 {
	return c.reconnects.Load()
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.status.Store(status)
}

// GetStatus returns current status information
func (c *Client) GetStatus() *Status {
	status := &Status{
		Status:          c.Status(),
		Reconnects:      c.reconnects.Load(),
		LastFailureTime: c.lastFailure.Load().(time.Time),
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn != nil && conn.IsConnected() {
		if rtt, err := conn.RTT(); err == nil {
			status.RTT = rtt
		}
	}

	return status
}

// buildConnectionOptions builds NATS connection options from client configuration
func (c *Client) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}

	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}

	if c.tlsCertFile != "" && c.tlsKeyFile != "" {
		opts = append(opts, nats.ClientCert(c.tlsCertFile, c.tlsKeyFile))
	}
	if c.tlsCAFile != "" {
		opts = append(opts, nats.RootCAs(c.tlsCAFile))
	}

	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}

	return opts
}

// Connect establishes the connection to the NATS server. It blocks until the
// initial handshake succeeds, fails, or the context is cancelled.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.setStatus(StatusConnecting)
	c.logger.Printf("Connecting to NATS at %s", c.url)

	opts := c.buildConnectionOptions()

	type connectResult struct {
		conn *nats.Conn
		js   jetstream.JetStream
		err  error
	}

	connectDone := make(chan connectResult, 1)
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		if err != nil {
			connectDone <- connectResult{err: err}
			return
		}

		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			connectDone <- connectResult{err: err}
			return
		}

		connectDone <- connectResult{conn: conn, js: js}
	}()

	select {
	case res := <-connectDone:
		if res.err != nil {
			c.lastFailure.Store(time.Now())
			c.setStatus(StatusDisconnected)
			return errors.WrapTransient(res.err, "Client", "Connect", "establish connection")
		}

		c.mu.Lock()
		c.conn = res.conn
		c.js = res.js
		c.mu.Unlock()
	case <-ctx.Done():
		// The handshake may still succeed after cancellation; close the
		// connection when it does so nothing lingers.
		go func() {
			if res := <-connectDone; res.conn != nil {
				res.conn.Close()
			}
		}()

		c.lastFailure.Store(time.Now())
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}

	c.setStatus(StatusConnected)
	c.reconnects.Store(0)
	c.logger.Printf("Connected to NATS at %s", c.url)

	return nil
}

// Publish publishes a message to a NATS subject. It fails fast when the
// connection is not currently established; messages are never queued for
// later delivery.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if c.Status() != StatusConnected || conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}

	return conn.Publish(subject, data)
}

// EnsureStream creates or updates a JetStream stream covering the given
// subjects. Streams give the inbound telemetry at-least-once delivery.
func (c *Client) EnsureStream(ctx context.Context, name string, subjects []string) error {
	js, err := c.jetStream()
	if err != nil {
		return err
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  subjects,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "EnsureStream", "create stream "+name)
	}
	return nil
}

// ConsumeStream creates a durable consumer on a stream and delivers messages
// sequentially to the handler. Messages are acknowledged after the handler
// returns, giving at-least-once semantics.
func (c *Client) ConsumeStream(ctx context.Context, streamName, durable string, handler func(context.Context, string, []byte)) error {
	if c.closed.Load() {
		return ErrClosed
	}

	js, err := c.jetStream()
	if err != nil {
		return err
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Durable:   durable,
		AckPolicy: jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "ConsumeStream", "create consumer "+durable)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		handler(msgCtx, msg.Subject(), msg.Data())
		_ = msg.Ack()
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "ConsumeStream", "start consumer "+durable)
	}

	c.consumersMu.Lock()
	defer c.consumersMu.Unlock()

	if c.closed.Load() {
		consumeCtx.Stop()
		return ErrClosed
	}

	if c.consumers == nil {
		c.consumers = make(map[string]jetstream.ConsumeContext)
	}
	key := fmt.Sprintf("%s:%s", streamName, durable)
	if existing, ok := c.consumers[key]; ok {
		existing.Stop()
		c.logger.Debugf("Replaced existing consumer for %s", key)
	}
	c.consumers[key] = consumeCtx

	return nil
}

// RTT returns the round-trip time to the NATS server
func (c *Client) RTT() (time.Duration, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return 0, ErrNotConnected
	}
	return conn.RTT()
}

// Close closes the NATS connection deterministically. In-flight handler
// invocations are given until the drain timeout to finish.
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Load() {
		return nil
	}
	c.closed.Store(true)

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	c.consumersMu.Lock()
	for name, consumer := range c.consumers {
		consumer.Stop()
		c.logger.Debugf("Stopped consumer: %s", name)
	}
	c.consumers = nil
	c.consumersMu.Unlock()

	if c.conn != nil {
		drainTimeout := c.drainTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
				drainTimeout = remaining
			}
		}

		drainDone := make(chan error, 1)
		go func() {
			drainDone <- c.conn.Drain()
		}()

		select {
		case err := <-drainDone:
			if err != nil {
				errs = append(errs, errors.Wrap(err, "Client", "Close", "drain connection"))
				c.logger.Errorf("Drain error: %v", err)
			}
		case <-time.After(drainTimeout):
			errs = append(errs, errors.WrapTransient(
				fmt.Errorf("drain timeout after %v", drainTimeout),
				"Client", "Close", "drain timeout"))
			c.logger.Errorf("Drain timeout after %v, force closing", drainTimeout)
		case <-ctx.Done():
			errs = append(errs, errors.Wrap(ctx.Err(), "Client", "Close", "context cancelled during drain"))
		}

		c.conn.Close()
		c.conn = nil
	}

	// Clear sensitive credentials from memory
	c.username = ""
	c.password = ""
	c.token = ""

	c.setStatus(StatusClosed)

	if len(errs) > 0 {
		return stderrors.Join(errs...)
	}
	return nil
}

// Event handlers for the NATS connection

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	if c.closed.Load() {
		return
	}

	attempts := c.reconnects.Add(1)
	c.lastFailure.Store(time.Now())
	c.setStatus(StatusReconnecting)
	c.logger.Printf("Connection dropped, reconnecting (attempt %d/%d)", attempts, c.maxReconnects)

	c.mu.RLock()
	onDisconnect := c.onDisconnect
	c.mu.RUnlock()

	if onDisconnect != nil {
		go onDisconnect(err)
	}
}

func (c *Client) handleReconnect(_ *nats.Conn) {
	c.setStatus(StatusConnected)
	c.reconnects.Store(0)
	c.logger.Printf("Reconnected to NATS at %s", c.url)

	c.mu.RLock()
	onReconnect := c.onReconnect
	c.mu.RUnlock()

	if onReconnect != nil {
		go onReconnect()
	}
}

// handleClosed observes the terminal close of the underlying connection.
// When the close was not requested via Close(), the reconnect cap has been
// exhausted: the client stays disconnected until an external restart.
func (c *Client) handleClosed(conn *nats.Conn) {
	if c.closed.Load() {
		c.setStatus(StatusClosed)
		return
	}

	c.setStatus(StatusDisconnected)
	var err error
	if conn != nil {
		err = conn.LastError()
	}
	c.logger.Errorf("Connection closed after exhausting %d reconnect attempts: %v", c.maxReconnects, err)

	c.mu.RLock()
	onConnectionLost := c.onConnectionLost
	c.mu.RUnlock()

	if onConnectionLost != nil {
		go onConnectionLost(err)
	}
}

func (c *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	if sub != nil {
		c.logger.Errorf("NATS error on %s: %v", sub.Subject, err)
		return
	}
	c.logger.Errorf("NATS error: %v", err)
}

func (c *Client) jetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.js == nil {
		return nil, ErrNotConnected
	}
	return c.js, nil
}
