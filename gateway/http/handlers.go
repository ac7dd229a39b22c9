package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/c360/biostream/errors"
	"github.com/c360/biostream/export"
	"github.com/c360/biostream/ingest"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.storage.Users(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeList(w, users, len(users))
}

type upsertUserRequest struct {
	Alias string  `json:"alias"`
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

func (s *Server) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	var req upsertUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.WrapInvalid(err, "Server", "handleUpsertUser", "decode request body"))
		return
	}
	if req.Alias == "" {
		s.writeError(w, errors.WrapInvalid(errors.ErrMissingField, "Server", "handleUpsertUser", "validate alias"))
		return
	}

	user, err := s.storage.UpsertUser(r.Context(), req.Alias, req.Name, req.Email)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.storage.UserByAlias(r.Context(), r.PathValue("alias"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, user)
}

func (s *Server) handleUserMeasurements(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50)
	measurements, err := s.storage.MeasurementsByUser(r.Context(), r.PathValue("alias"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeList(w, measurements, len(measurements))
}

type startMeasurementRequest struct {
	UserAlias string             `json:"userAlias"`
	CVParams  *ingest.ScanParams `json:"cvParams"`
}

func (s *Server) handleStartMeasurement(w http.ResponseWriter, r *http.Request) {
	var req startMeasurementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.WrapInvalid(err, "Server", "handleStartMeasurement", "decode request body"))
		return
	}
	if req.UserAlias == "" {
		s.writeError(w, errors.WrapInvalid(errors.ErrMissingField, "Server", "handleStartMeasurement", "validate userAlias"))
		return
	}

	info, err := s.pipeline.StartSession(r.Context(), req.UserAlias, req.CVParams)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.Metrics.RecordSessionActive(true)
	}
	s.writeData(w, info)
}

// handleStopMeasurement stops the live session when the path ID matches it.
// Any other ID is finalized directly in the store so stale sessions can still
// be closed out.
func (s *Server) handleStopMeasurement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	session := s.pipeline.Session()
	if session.Active && session.SessionID == id {
		if err := s.pipeline.StopSession(r.Context()); err != nil {
			s.writeError(w, err)
			return
		}
		// Only stopping the live session clears the gauge; finalizing a
		// stale row leaves the current session running.
		if s.metrics != nil {
			s.metrics.Metrics.RecordSessionActive(false)
		}
	} else if err := s.storage.FinalizeSession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeData(w, map[string]any{"id": id, "status": "completed"})
}

func (s *Server) handleGetMeasurement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	bundle, err := s.storage.MeasurementByID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, bundle)
}

func (s *Server) handleGetMeasurementByUUID(w http.ResponseWriter, r *http.Request) {
	bundle, err := s.storage.MeasurementByUUID(r.Context(), r.PathValue("uuid"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, bundle)
}

func (s *Server) handleDownloadMeasurement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	format, ok := export.ParseFormat(r.URL.Query().Get("format"))
	if !ok {
		s.writeError(w, errors.WrapInvalid(errors.ErrInvalidPayload, "Server", "handleDownloadMeasurement", "parse format"))
		return
	}

	bundle, err := s.storage.MeasurementByID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	data, err := export.Render(bundle, format)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(bundle.Measurement.UUID, format, time.Now())+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error("download write failed", "measurement_id", id, "error", err)
	}
}

func (s *Server) handleMeasurementStats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	stats, err := s.storage.Stats(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, stats)
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.storage.Devices(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeList(w, devices, len(devices))
}

func (s *Server) handleDeviceMeasurements(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50)
	measurements, err := s.storage.MeasurementsByDevice(r.Context(), r.PathValue("deviceId"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeList(w, measurements, len(measurements))
}

type commandRequest struct {
	Command string `json:"command"`
}

func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.WrapInvalid(err, "Server", "handleSendCommand", "decode request body"))
		return
	}

	if err := s.pipeline.SendCommand(r.Context(), req.Command); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, map[string]string{"command": req.Command, "status": "sent"})
}

func (s *Server) handleSendParameters(w http.ResponseWriter, r *http.Request) {
	var params ingest.ScanParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.writeError(w, errors.WrapInvalid(err, "Server", "handleSendParameters", "decode request body"))
		return
	}

	if err := s.pipeline.SendParameters(r.Context(), params); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, map[string]any{"params": params, "status": "sent"})
}

func (s *Server) handleBrokerStatus(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, map[string]any{
		"connected": s.pipeline.IsConnected(),
		"session":   s.pipeline.Session(),
	})
}

func (s *Server) handleTransmissionStatus(w http.ResponseWriter, r *http.Request) {
	session := s.pipeline.Session()
	s.writeData(w, map[string]any{
		"transmitting": session.Active,
		"session":      session,
	})
}

func (s *Server) handleTransmissionStats(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, s.pipeline.Stats())
}

func (s *Server) handleDatabaseStatus(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.Ping(r.Context()); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, envelope{
			Success: false,
			Error:   "database unreachable",
		})
		return
	}

	counts, err := s.storage.TableCounts(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, map[string]any{"connected": true, "counts": counts})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	dbOK := s.storage.Ping(r.Context()) == nil
	s.writeData(w, map[string]any{
		"uptime":   time.Since(s.startTime).Round(time.Second).String(),
		"broker":   map[string]any{"connected": s.pipeline.IsConnected()},
		"database": map[string]any{"connected": dbOK},
		"session":  s.pipeline.Session(),
		"stats":    s.pipeline.Stats(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	system := s.monitor.System("biostream")
	status := http.StatusOK
	if system.IsUnhealthy() {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, envelope{Success: !system.IsUnhealthy(), Data: system})
}

func (s *Server) handleWiFiScan(w http.ResponseWriter, r *http.Request) {
	networks, err := s.wifi.Scan(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeList(w, networks, len(networks))
}

type wifiConnectRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

func (s *Server) handleWiFiConnect(w http.ResponseWriter, r *http.Request) {
	var req wifiConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.WrapInvalid(err, "Server", "handleWiFiConnect", "decode request body"))
		return
	}

	status, err := s.wifi.Connect(r.Context(), req.SSID, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, status)
}

func (s *Server) handleWiFiDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.wifi.Disconnect(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, map[string]string{"status": "disconnected"})
}

func (s *Server) handleWiFiStatus(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, s.wifi.RefreshStatus(r.Context()))
}

func (s *Server) handleWiFiSaved(w http.ResponseWriter, r *http.Request) {
	saved := s.wifi.SavedNetworks()
	s.writeList(w, saved, len(saved))
}

func (s *Server) handleWiFiSave(w http.ResponseWriter, r *http.Request) {
	if err := s.wifi.SaveCurrent(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, map[string]string{"status": "saved"})
}

type wifiForgetRequest struct {
	SSID string `json:"ssid"`
}

func (s *Server) handleWiFiForget(w http.ResponseWriter, r *http.Request) {
	var req wifiForgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.WrapInvalid(err, "Server", "handleWiFiForget", "decode request body"))
		return
	}

	if err := s.wifi.Forget(r.Context(), req.SSID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, map[string]string{"status": "forgotten", "ssid": req.SSID})
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, errors.WrapInvalid(err, "Server", "pathID", "parse "+name)
	}
	return id, nil
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}
