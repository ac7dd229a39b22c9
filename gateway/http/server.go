// Package http serves the REST API, the live telemetry WebSocket feed, the
// metrics endpoint, and the static frontend.
package http

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/c360/biostream/errors"
	"github.com/c360/biostream/health"
	"github.com/c360/biostream/ingest"
	"github.com/c360/biostream/metric"
	"github.com/c360/biostream/store"
	"github.com/c360/biostream/wifinet"
)

// Pipeline is the ingestion surface the API drives.
type Pipeline interface {
	StartSession(ctx context.Context, userAlias string, params *ingest.ScanParams) (ingest.SessionInfo, error)
	StopSession(ctx context.Context) error
	SendCommand(ctx context.Context, command string) error
	SendParameters(ctx context.Context, params ingest.ScanParams) error
	Session() ingest.SessionSnapshot
	Stats() ingest.StatsSnapshot
	IsConnected() bool
}

// Storage is the persistence surface the API reads.
type Storage interface {
	Users(ctx context.Context) ([]store.UserSummary, error)
	UserByAlias(ctx context.Context, alias string) (*store.User, error)
	UpsertUser(ctx context.Context, alias string, name, email *string) (*store.User, error)
	MeasurementsByUser(ctx context.Context, alias string, limit int) ([]store.MeasurementSummary, error)
	MeasurementsByDevice(ctx context.Context, deviceID string, limit int) ([]store.MeasurementSummary, error)
	MeasurementByID(ctx context.Context, id int64) (*store.MeasurementBundle, error)
	MeasurementByUUID(ctx context.Context, uuid string) (*store.MeasurementBundle, error)
	FinalizeSession(ctx context.Context, sessionID int64) error
	Stats(ctx context.Context, id int64) (*store.MeasurementStats, error)
	Devices(ctx context.Context) ([]store.DeviceSummary, error)
	TableCounts(ctx context.Context) (*store.TableCountsResult, error)
	Ping(ctx context.Context) error
}

// WiFi is the host network management surface.
type WiFi interface {
	Scan(ctx context.Context) ([]wifinet.Network, error)
	Connect(ctx context.Context, ssid, password string) (wifinet.Status, error)
	Disconnect(ctx context.Context) error
	RefreshStatus(ctx context.Context) wifinet.Status
	SavedNetworks() []wifinet.SavedNetworkInfo
	SaveCurrent() error
	Forget(ctx context.Context, ssid string) error
}

// Server is the HTTP gateway.
type Server struct {
	pipeline Pipeline
	storage  Storage
	wifi     WiFi
	monitor  *health.Monitor
	metrics  *metric.Registry
	hub      *Hub
	logger   *slog.Logger

	addr      string
	staticDir string
	startTime time.Time

	httpServer *http.Server
}

// Option configures the server.
type Option func(*Server)

// WithWiFi enables the Wi-Fi management endpoints.
func WithWiFi(w WiFi) Option {
	return func(s *Server) { s.wifi = w }
}

// WithStaticDir serves the frontend from the given directory.
func WithStaticDir(dir string) Option {
	return func(s *Server) { s.staticDir = dir }
}

// WithMetrics mounts the metrics endpoint and per-route request counting.
func WithMetrics(m *metric.Registry) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer assembles the gateway.
func NewServer(addr string, pipeline Pipeline, storage Storage, monitor *health.Monitor, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		pipeline:  pipeline,
		storage:   storage,
		monitor:   monitor,
		logger:    logger,
		addr:      addr,
		startTime: time.Now(),
		hub:       NewHub(logger),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Hub returns the live telemetry hub so the caller can tap the router into
// it.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start runs the HTTP server until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http gateway listening", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "Server", "Start", "listen on "+s.addr)
	}
	return nil
}

// Shutdown stops the server, giving in-flight requests until the context
// deadline to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "Server", "Shutdown", "shutdown http server")
	}
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/users", s.handleListUsers)
	mux.HandleFunc("POST /api/users", s.handleUpsertUser)
	mux.HandleFunc("GET /api/users/{alias}", s.handleGetUser)
	mux.HandleFunc("GET /api/users/{alias}/measurements", s.handleUserMeasurements)

	mux.HandleFunc("POST /api/measurements/start", s.handleStartMeasurement)
	mux.HandleFunc("POST /api/measurements/{id}/stop", s.handleStopMeasurement)
	mux.HandleFunc("GET /api/measurements/{id}", s.handleGetMeasurement)
	mux.HandleFunc("GET /api/measurements/uuid/{uuid}", s.handleGetMeasurementByUUID)
	mux.HandleFunc("GET /api/measurements/{id}/download", s.handleDownloadMeasurement)
	mux.HandleFunc("GET /api/measurements/{id}/stats", s.handleMeasurementStats)

	mux.HandleFunc("GET /api/devices", s.handleListDevices)
	mux.HandleFunc("GET /api/devices/{deviceId}/measurements", s.handleDeviceMeasurements)

	mux.HandleFunc("POST /api/broker/command", s.handleSendCommand)
	mux.HandleFunc("POST /api/broker/parameters", s.handleSendParameters)
	mux.HandleFunc("GET /api/broker/status", s.handleBrokerStatus)

	mux.HandleFunc("GET /api/transmission/status", s.handleTransmissionStatus)
	mux.HandleFunc("GET /api/transmission/stats", s.handleTransmissionStats)
	mux.HandleFunc("GET /api/database/status", s.handleDatabaseStatus)
	mux.HandleFunc("GET /api/system/status", s.handleSystemStatus)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	if s.wifi != nil {
		mux.HandleFunc("GET /api/wifi/scan", s.handleWiFiScan)
		mux.HandleFunc("POST /api/wifi/connect", s.handleWiFiConnect)
		mux.HandleFunc("POST /api/wifi/disconnect", s.handleWiFiDisconnect)
		mux.HandleFunc("GET /api/wifi/status", s.handleWiFiStatus)
		mux.HandleFunc("GET /api/wifi/saved", s.handleWiFiSaved)
		mux.HandleFunc("POST /api/wifi/save", s.handleWiFiSave)
		mux.HandleFunc("POST /api/wifi/forget", s.handleWiFiForget)
	}

	mux.HandleFunc("GET /api/live", s.hub.HandleWS)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("/api/", s.handleNotFound)

	if s.staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	}

	return s.withRequestContext(mux)
}

// withRequestContext assigns a request ID, logs the request, and counts it.
func (s *Server) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = newRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", reqID)

		if s.metrics != nil {
			s.metrics.Metrics.RecordHTTPRequest(r.URL.Path, strconv.Itoa(rec.status))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack forwards to the underlying writer so the websocket upgrade works
// through the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

func newRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// envelope is the response wrapper every JSON endpoint uses.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Count   *int   `json:"count,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encoding failed", "error", err)
	}
}

func (s *Server) writeData(w http.ResponseWriter, data any) {
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func (s *Server) writeList(w http.ResponseWriter, data any, count int) {
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Count: &count})
}

// writeError maps the error classification to an HTTP status: invalid input
// is the caller's fault, everything else is a server-side failure.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case stderrors.Is(err, errors.ErrNotFound):
		status = http.StatusNotFound
	case errors.IsInvalid(err):
		status = http.StatusBadRequest
	case stderrors.Is(err, errors.ErrScanThrottled):
		status = http.StatusTooManyRequests
	}
	s.writeJSON(w, status, envelope{Success: false, Error: err.Error()})
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusNotFound, envelope{Success: false, Error: "endpoint not found"})
}
