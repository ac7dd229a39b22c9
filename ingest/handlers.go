package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/c360/biostream/errors"
)

// TelemetryStore is the persistence surface the handlers write through.
type TelemetryStore interface {
	InsertCV(ctx context.Context, sessionID int64, voltage, current float64, at time.Time) error
	InsertHeartRate(ctx context.Context, sessionID int64, bpm float64, avgBPM *float64, at time.Time) error
	InsertSpO2(ctx context.Context, sessionID int64, spo2 float64, avgSpO2 *float64, at time.Time) error
	InsertStress(ctx context.Context, sessionID int64, level float64, at time.Time) error
	UpsertDevice(ctx context.Context, deviceID, name, ipAddress string) error
}

// Handlers binds the per-topic message handlers to the session registry, the
// store, and the stats tracker.
//
// Three outcomes are kept distinct on purpose: a malformed payload is a
// validation error, a storage failure is a write error, and a data point
// arriving with no active session is a silent drop. Only the first two count
// as errors.
type Handlers struct {
	sessions *SessionRegistry
	store    TelemetryStore
	stats    *Stats
	logger   *slog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(sessions *SessionRegistry, store TelemetryStore, stats *Stats, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		sessions: sessions,
		store:    store,
		stats:    stats,
		logger:   logger,
	}
}

// Register installs one handler per inbound topic.
func (h *Handlers) Register(r *Router) {
	r.Handle(TopicCVData, h.HandleCVData)
	r.Handle(TopicRawData, h.HandleRawData)
	r.Handle(TopicStatus, h.HandlePotentiostatStatus)
	r.Handle(TopicHeartRate, h.HandleHeartRate)
	r.Handle(TopicSpO2, h.HandleSpO2)
	r.Handle(TopicStress, h.HandleStress)
	r.Handle(TopicESP32Status, h.HandleDeviceStatus)
	r.Handle(TopicESP32Config, h.HandleDeviceConfig)
	r.Handle(TopicParams, h.HandleParamsEcho)
	r.Handle(TopicCommand, h.HandleCommandEcho)
}

// HandleCVData persists one voltammetry point against the active session.
func (h *Handlers) HandleCVData(ctx context.Context, payload []byte) error {
	var p cvPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errors.WrapInvalid(err, "handlers", "HandleCVData", "parse payload")
	}
	if p.Voltage == nil || p.Current == nil {
		return errors.WrapInvalid(errors.ErrMissingField, "handlers", "HandleCVData", "validate payload")
	}

	sess := h.sessions.Current()
	if !sess.Active {
		h.logger.Info("cv data dropped, no active session",
			"voltage", *p.Voltage, "current", *p.Current)
		return nil
	}

	at := ParseTimestamp(p.Timestamp)
	if err := h.store.InsertCV(ctx, sess.SessionID, *p.Voltage, *p.Current, at); err != nil {
		return errors.Wrap(err, "handlers", "HandleCVData", "insert cv point")
	}

	h.stats.DataPointsSaved(1)
	unit := p.CurrentUnit
	if unit == "" {
		unit = "uA"
	}
	h.logger.Debug("cv data saved",
		"session_id", sess.SessionID,
		"voltage", *p.Voltage,
		"current", *p.Current,
		"unit", unit)
	return nil
}

// HandleRawData logs raw waveform traffic without persisting it.
func (h *Handlers) HandleRawData(_ context.Context, payload []byte) error {
	h.logger.Debug("raw data received", "bytes", len(payload))
	return nil
}

// HandlePotentiostatStatus logs instrument status messages.
func (h *Handlers) HandlePotentiostatStatus(_ context.Context, payload []byte) error {
	h.logger.Info("potentiostat status", "status", truncate(payload, 100))
	return nil
}

// HandleHeartRate persists one heart-rate reading against the active session.
func (h *Handlers) HandleHeartRate(ctx context.Context, payload []byte) error {
	var p heartRatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errors.WrapInvalid(err, "handlers", "HandleHeartRate", "parse payload")
	}
	if p.BPM == nil {
		return errors.WrapInvalid(errors.ErrMissingField, "handlers", "HandleHeartRate", "validate payload")
	}

	sess := h.sessions.Current()
	if !sess.Active {
		h.logger.Info("heart rate dropped, no active session", "bpm", *p.BPM)
		return nil
	}

	at := ParseTimestamp(p.Timestamp)
	if err := h.store.InsertHeartRate(ctx, sess.SessionID, *p.BPM, p.AvgBPM, at); err != nil {
		return errors.Wrap(err, "handlers", "HandleHeartRate", "insert heart rate")
	}

	h.stats.DataPointsSaved(1)
	h.logger.Debug("heart rate saved", "session_id", sess.SessionID, "bpm", *p.BPM)
	return nil
}

// HandleSpO2 persists one oxygen-saturation reading against the active
// session.
func (h *Handlers) HandleSpO2(ctx context.Context, payload []byte) error {
	var p spo2Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errors.WrapInvalid(err, "handlers", "HandleSpO2", "parse payload")
	}
	if p.SpO2 == nil {
		return errors.WrapInvalid(errors.ErrMissingField, "handlers", "HandleSpO2", "validate payload")
	}

	sess := h.sessions.Current()
	if !sess.Active {
		h.logger.Info("spo2 dropped, no active session", "spo2", *p.SpO2)
		return nil
	}

	at := ParseTimestamp(p.Timestamp)
	if err := h.store.InsertSpO2(ctx, sess.SessionID, *p.SpO2, p.AvgSpO2, at); err != nil {
		return errors.Wrap(err, "handlers", "HandleSpO2", "insert spo2")
	}

	h.stats.DataPointsSaved(1)
	h.logger.Debug("spo2 saved", "session_id", sess.SessionID, "spo2", *p.SpO2)
	return nil
}

// HandleStress persists one stress reading against the active session.
func (h *Handlers) HandleStress(ctx context.Context, payload []byte) error {
	var p stressPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errors.WrapInvalid(err, "handlers", "HandleStress", "parse payload")
	}
	if p.StressLaccase == nil {
		return errors.WrapInvalid(errors.ErrMissingField, "handlers", "HandleStress", "validate payload")
	}

	sess := h.sessions.Current()
	if !sess.Active {
		h.logger.Info("stress dropped, no active session", "level", *p.StressLaccase)
		return nil
	}

	at := ParseTimestamp(p.Timestamp)
	if err := h.store.InsertStress(ctx, sess.SessionID, *p.StressLaccase, at); err != nil {
		return errors.Wrap(err, "handlers", "HandleStress", "insert stress")
	}

	h.stats.DataPointsSaved(1)
	h.logger.Debug("stress saved", "session_id", sess.SessionID, "level", *p.StressLaccase)
	return nil
}

// HandleDeviceStatus upserts the announcing device and adopts it as the
// implicit target for subsequent session starts.
func (h *Handlers) HandleDeviceStatus(ctx context.Context, payload []byte) error {
	var p deviceStatusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errors.WrapInvalid(err, "handlers", "HandleDeviceStatus", "parse payload")
	}
	if p.DeviceID == "" {
		return errors.WrapInvalid(errors.ErrMissingField, "handlers", "HandleDeviceStatus", "validate payload")
	}

	if err := h.store.UpsertDevice(ctx, p.DeviceID, p.DeviceName, p.IPAddress); err != nil {
		return errors.Wrap(err, "handlers", "HandleDeviceStatus", "upsert device")
	}

	h.sessions.SetDeviceID(p.DeviceID)
	h.logger.Info("device status",
		"device_id", p.DeviceID,
		"device_name", p.DeviceName,
		"ip_address", p.IPAddress)
	return nil
}

// HandleDeviceConfig logs configuration acknowledgements from the device.
func (h *Handlers) HandleDeviceConfig(_ context.Context, payload []byte) error {
	h.logger.Info("device config ack", "config", truncate(payload, 100))
	return nil
}

// HandleParamsEcho logs the device's echo of outbound scan parameters.
func (h *Handlers) HandleParamsEcho(_ context.Context, payload []byte) error {
	h.logger.Debug("scan parameters echo", "params", truncate(payload, 100))
	return nil
}

// HandleCommandEcho logs the device's echo of outbound commands.
func (h *Handlers) HandleCommandEcho(_ context.Context, payload []byte) error {
	h.logger.Debug("command echo", "command", truncate(payload, 100))
	return nil
}
