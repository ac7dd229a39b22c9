package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/c360/biostream/errors"
)

// StreamName is the JetStream stream holding inbound telemetry.
const StreamName = "TELEMETRY"

// DurableName identifies the pipeline's durable consumer on the telemetry
// stream.
const DurableName = "biostream-ingest"

// streamSubjects are the subject filters the telemetry stream captures. They
// cover every inbound topic, including the outbound echoes.
var streamSubjects = []string{"potentiostat.>", "sensor.>", "device.>"}

// Broker is the messaging surface the supervisor drives. *natsclient.Client
// satisfies it.
type Broker interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, subject string, data []byte) error
	EnsureStream(ctx context.Context, name string, subjects []string) error
	ConsumeStream(ctx context.Context, streamName, durable string, handler func(context.Context, string, []byte)) error
	Close(ctx context.Context) error
	IsConnected() bool
}

// SessionInfo is the session identity handed back to callers when a
// measurement session is opened.
type SessionInfo struct {
	ID        int64     `json:"id"`
	UUID      string    `json:"uuid"`
	UserAlias string    `json:"userAlias"`
	DeviceID  string    `json:"deviceId"`
	StartedAt time.Time `json:"startedAt"`
}

// SessionStore creates and finalizes measurement sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, userAlias, deviceID string, params *ScanParams) (SessionInfo, error)
	FinalizeSession(ctx context.Context, sessionID int64) error
}

// Supervisor owns the ingestion pipeline: it connects the broker, provisions
// the telemetry stream, runs the consumer, and exposes the session and
// command operations the API layer calls.
type Supervisor struct {
	broker   Broker
	store    SessionStore
	sessions *SessionRegistry
	router   *Router
	stats    *Stats
	logger   *slog.Logger
}

// NewSupervisor assembles the pipeline around an already-configured broker.
func NewSupervisor(broker Broker, store SessionStore, sessions *SessionRegistry, router *Router, stats *Stats, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		broker:   broker,
		store:    store,
		sessions: sessions,
		router:   router,
		stats:    stats,
		logger:   logger,
	}
}

// Start connects to the broker, ensures the telemetry stream exists, starts
// the durable consumer, and announces the backend as online. The consumer
// keeps running until the context is cancelled or Stop is called.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.broker.Connect(ctx); err != nil {
		return errors.Wrap(err, "Supervisor", "Start", "connect broker")
	}

	if err := s.broker.EnsureStream(ctx, StreamName, streamSubjects); err != nil {
		return errors.Wrap(err, "Supervisor", "Start", "ensure telemetry stream")
	}

	if err := s.broker.ConsumeStream(ctx, StreamName, DurableName, s.router.Dispatch); err != nil {
		return errors.Wrap(err, "Supervisor", "Start", "start consumer")
	}

	s.announceOnline(ctx)
	s.logger.Info("ingestion pipeline started", "stream", StreamName, "durable", DurableName)
	return nil
}

// announceOnline publishes the backend-online announcement. Failure to
// announce is logged but never blocks startup.
func (s *Supervisor) announceOnline(ctx context.Context) {
	payload, _ := json.Marshal(map[string]any{
		"status":    "online",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err := s.broker.Publish(ctx, TopicBackendStatus, payload); err != nil {
		s.logger.Warn("backend-online announcement failed", "error", err)
	}
}

// StartSession opens a measurement session: a session record is created in
// the store against the currently-announced device, the registry adopts it,
// the scan parameters (when given) are pushed to the device, and the start
// command is sent.
func (s *Supervisor) StartSession(ctx context.Context, userAlias string, params *ScanParams) (SessionInfo, error) {
	deviceID := s.sessions.Current().DeviceID

	info, err := s.store.CreateSession(ctx, userAlias, deviceID, params)
	if err != nil {
		return SessionInfo{}, errors.Wrap(err, "Supervisor", "StartSession", "create session")
	}

	s.sessions.Start(info.ID, userAlias)

	if params != nil {
		if err := s.SendParameters(ctx, *params); err != nil {
			s.logger.Warn("scan parameters not delivered", "session_id", info.ID, "error", err)
		}
	}
	if err := s.SendCommand(ctx, CommandStart); err != nil {
		s.logger.Warn("start command not delivered", "session_id", info.ID, "error", err)
	}

	return info, nil
}

// StopSession closes the active session: the stop command is sent, the store
// record is finalized, and the registry is cleared. Finalization still runs
// when the command cannot be delivered, so the store never keeps a session
// open because the device was unreachable.
func (s *Supervisor) StopSession(ctx context.Context) error {
	sess := s.sessions.Current()
	if !sess.Active {
		return nil
	}

	if err := s.SendCommand(ctx, CommandStop); err != nil {
		s.logger.Warn("stop command not delivered", "session_id", sess.SessionID, "error", err)
	}

	if err := s.store.FinalizeSession(ctx, sess.SessionID); err != nil {
		return errors.Wrap(err, "Supervisor", "StopSession", "finalize session")
	}

	s.sessions.Stop()
	return nil
}

// SendCommand publishes a control command to the device. The token is
// upper-cased and must belong to the fixed command vocabulary.
func (s *Supervisor) SendCommand(ctx context.Context, command string) error {
	cmd := strings.ToUpper(strings.TrimSpace(command))
	if !validCommands[cmd] {
		return errors.WrapInvalid(errors.ErrInvalidCommand, "Supervisor", "SendCommand", "validate "+command)
	}

	if err := s.broker.Publish(ctx, TopicCommand, []byte(cmd)); err != nil {
		return errors.WrapTransient(err, "Supervisor", "SendCommand", "publish "+cmd)
	}

	s.logger.Info("command sent", "command", cmd)
	return nil
}

// SendParameters publishes the voltammetry sweep configuration to the device.
func (s *Supervisor) SendParameters(ctx context.Context, params ScanParams) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return errors.WrapInvalid(err, "Supervisor", "SendParameters", "encode parameters")
	}

	if err := s.broker.Publish(ctx, TopicParams, payload); err != nil {
		return errors.WrapTransient(err, "Supervisor", "SendParameters", "publish parameters")
	}

	s.logger.Info("scan parameters sent",
		"start_point", params.StartPoint,
		"scan_rate", params.ScanRate)
	return nil
}

// Session returns the current session snapshot.
func (s *Supervisor) Session() SessionSnapshot {
	return s.sessions.Current()
}

// Stats returns a snapshot of the pipeline counters.
func (s *Supervisor) Stats() StatsSnapshot {
	return s.stats.Snapshot()
}

// IsConnected reports whether the broker connection is established.
func (s *Supervisor) IsConnected() bool {
	return s.broker.IsConnected()
}

// Stop shuts down the pipeline. An active session is finalized first so the
// store is left consistent.
func (s *Supervisor) Stop(ctx context.Context) error {
	if err := s.StopSession(ctx); err != nil {
		s.logger.Error("session not finalized during shutdown", "error", err)
	}

	if err := s.broker.Close(ctx); err != nil {
		return errors.Wrap(err, "Supervisor", "Stop", "close broker")
	}

	s.logger.Info("ingestion pipeline stopped")
	return nil
}
