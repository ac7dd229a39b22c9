package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/biostream/errors"
	"github.com/c360/biostream/health"
	"github.com/c360/biostream/ingest"
	"github.com/c360/biostream/metric"
	"github.com/c360/biostream/store"
	"github.com/c360/biostream/wifinet"
)

type fakePipeline struct {
	session    ingest.SessionSnapshot
	stats      ingest.StatsSnapshot
	connected  bool
	startErr   error
	stopErr    error
	commandErr error

	started  []string
	stopped  int
	commands []string
	params   []ingest.ScanParams
}

func (f *fakePipeline) StartSession(_ context.Context, userAlias string, _ *ingest.ScanParams) (ingest.SessionInfo, error) {
	if f.startErr != nil {
		return ingest.SessionInfo{}, f.startErr
	}
	f.started = append(f.started, userAlias)
	return ingest.SessionInfo{ID: 42, UUID: "u-42", UserAlias: userAlias, DeviceID: "ESP32_001", StartedAt: time.Now()}, nil
}

func (f *fakePipeline) StopSession(context.Context) error {
	f.stopped++
	return f.stopErr
}

func (f *fakePipeline) SendCommand(_ context.Context, command string) error {
	if f.commandErr != nil {
		return f.commandErr
	}
	f.commands = append(f.commands, command)
	return nil
}

func (f *fakePipeline) SendParameters(_ context.Context, params ingest.ScanParams) error {
	f.params = append(f.params, params)
	return nil
}

func (f *fakePipeline) Session() ingest.SessionSnapshot { return f.session }
func (f *fakePipeline) Stats() ingest.StatsSnapshot     { return f.stats }
func (f *fakePipeline) IsConnected() bool               { return f.connected }

type fakeStorage struct {
	users       []store.UserSummary
	bundle      *store.MeasurementBundle
	summaries   []store.MeasurementSummary
	counts      *store.TableCountsResult
	pingErr     error
	finalized   []int64
	byIDErr     error
	finalizeErr error
}

func (f *fakeStorage) Users(context.Context) ([]store.UserSummary, error) {
	return f.users, nil
}

func (f *fakeStorage) UserByAlias(_ context.Context, alias string) (*store.User, error) {
	if alias == "missing" {
		return nil, errors.WrapInvalid(errors.ErrNotFound, "Store", "UserByAlias", "query user")
	}
	return &store.User{ID: 1, Alias: alias}, nil
}

func (f *fakeStorage) UpsertUser(_ context.Context, alias string, name, _ *string) (*store.User, error) {
	return &store.User{ID: 1, Alias: alias, Name: name}, nil
}

func (f *fakeStorage) MeasurementsByUser(context.Context, string, int) ([]store.MeasurementSummary, error) {
	return f.summaries, nil
}

func (f *fakeStorage) MeasurementsByDevice(context.Context, string, int) ([]store.MeasurementSummary, error) {
	return f.summaries, nil
}

func (f *fakeStorage) MeasurementByID(context.Context, int64) (*store.MeasurementBundle, error) {
	if f.byIDErr != nil {
		return nil, f.byIDErr
	}
	return f.bundle, nil
}

func (f *fakeStorage) MeasurementByUUID(context.Context, string) (*store.MeasurementBundle, error) {
	return f.bundle, nil
}

func (f *fakeStorage) FinalizeSession(_ context.Context, sessionID int64) error {
	if f.finalizeErr != nil {
		return f.finalizeErr
	}
	f.finalized = append(f.finalized, sessionID)
	return nil
}

func (f *fakeStorage) Stats(context.Context, int64) (*store.MeasurementStats, error) {
	return &store.MeasurementStats{CVPoints: 10}, nil
}

func (f *fakeStorage) Devices(context.Context) ([]store.DeviceSummary, error) {
	return nil, nil
}

func (f *fakeStorage) TableCounts(context.Context) (*store.TableCountsResult, error) {
	return f.counts, nil
}

func (f *fakeStorage) Ping(context.Context) error { return f.pingErr }

type fakeWiFi struct {
	networks []wifinet.Network
	scanErr  error
	status   wifinet.Status
	saved    []wifinet.SavedNetworkInfo
	forgot   []string
}

func (f *fakeWiFi) Scan(context.Context) ([]wifinet.Network, error) {
	return f.networks, f.scanErr
}

func (f *fakeWiFi) Connect(_ context.Context, ssid, _ string) (wifinet.Status, error) {
	if ssid == "" {
		return wifinet.Status{}, errors.WrapInvalid(errors.ErrMissingField, "Manager", "Connect", "validate ssid")
	}
	return wifinet.Status{Connected: true, SSID: ssid}, nil
}

func (f *fakeWiFi) Disconnect(context.Context) error             { return nil }
func (f *fakeWiFi) RefreshStatus(context.Context) wifinet.Status { return f.status }
func (f *fakeWiFi) SavedNetworks() []wifinet.SavedNetworkInfo    { return f.saved }
func (f *fakeWiFi) SaveCurrent() error                           { return nil }

func (f *fakeWiFi) Forget(_ context.Context, ssid string) error {
	f.forgot = append(f.forgot, ssid)
	return nil
}

type gatewayFixture struct {
	server   *Server
	pipeline *fakePipeline
	storage  *fakeStorage
	wifi     *fakeWiFi
	ts       *httptest.Server
}

func newFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	pipeline := &fakePipeline{connected: true}
	storage := &fakeStorage{
		counts: &store.TableCountsResult{Users: 2, Measurements: 5},
		bundle: &store.MeasurementBundle{
			Measurement: store.Measurement{ID: 7, UUID: "abc-123", UserAlias: "alice", DeviceID: "ESP32_001", StartTime: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)},
		},
	}
	wifi := &fakeWiFi{}

	monitor := health.NewMonitor()
	monitor.UpdateHealthy("broker", "connected")

	srv := NewServer(":0", pipeline, storage, monitor, nil, WithWiFi(wifi))
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)

	return &gatewayFixture{server: srv, pipeline: pipeline, storage: storage, wifi: wifi, ts: ts}
}

func (g *gatewayFixture) get(t *testing.T, path string) (*http.Response, envelope) {
	t.Helper()
	resp, err := http.Get(g.ts.URL + path)
	require.NoError(t, err)
	return resp, decodeEnvelope(t, resp)
}

func (g *gatewayFixture) post(t *testing.T, path, body string) (*http.Response, envelope) {
	t.Helper()
	resp, err := http.Post(g.ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp, decodeEnvelope(t, resp)
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func TestServer_ListUsers(t *testing.T) {
	g := newFixture(t)
	g.storage.users = []store.UserSummary{{ID: 1, Alias: "alice"}, {ID: 2, Alias: "bob"}}

	resp, env := g.get(t, "/api/users")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	require.NotNil(t, env.Count)
	assert.Equal(t, 2, *env.Count)
}

func TestServer_GetUserNotFound(t *testing.T) {
	g := newFixture(t)

	resp, env := g.get(t, "/api/users/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)
}

func TestServer_StartMeasurement(t *testing.T) {
	g := newFixture(t)

	resp, env := g.post(t, "/api/measurements/start", `{"userAlias":"alice","cvParams":{"startPoint":-0.5,"scanRate":0.1}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.Equal(t, []string{"alice"}, g.pipeline.started)
}

func TestServer_StartMeasurementMissingAlias(t *testing.T) {
	g := newFixture(t)

	resp, env := g.post(t, "/api/measurements/start", `{"cvParams":{}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, env.Success)
	assert.Empty(t, g.pipeline.started)
}

func TestServer_StopActiveSessionGoesThroughPipeline(t *testing.T) {
	g := newFixture(t)
	g.pipeline.session = ingest.SessionSnapshot{SessionID: 42, Active: true}

	resp, _ := g.post(t, "/api/measurements/42/stop", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, g.pipeline.stopped)
	assert.Empty(t, g.storage.finalized)
}

func TestServer_StopStaleSessionFinalizesDirectly(t *testing.T) {
	g := newFixture(t)
	g.pipeline.session = ingest.SessionSnapshot{SessionID: 42, Active: true}

	resp, _ := g.post(t, "/api/measurements/7/stop", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, g.pipeline.stopped)
	assert.Equal(t, []int64{7}, g.storage.finalized)
}

func TestServer_StopStaleSessionKeepsGauge(t *testing.T) {
	pipeline := &fakePipeline{connected: true}
	storage := &fakeStorage{}
	registry := metric.NewRegistry()

	srv := NewServer(":0", pipeline, storage, health.NewMonitor(), nil, WithMetrics(registry))
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/api/measurements/start", "application/json", strings.NewReader(`{"userAlias":"alice"}`))
	require.NoError(t, err)
	resp.Body.Close()
	pipeline.session = ingest.SessionSnapshot{SessionID: 42, Active: true}

	// Finalizing a stale row must leave the live session's gauge alone.
	resp, err = http.Post(ts.URL+"/api/measurements/7/stop", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, []int64{7}, storage.finalized)
	assert.Contains(t, scrapeMetrics(t, ts.URL), "biostream_session_active 1")

	resp, err = http.Post(ts.URL+"/api/measurements/42/stop", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 1, pipeline.stopped)
	assert.Contains(t, scrapeMetrics(t, ts.URL), "biostream_session_active 0")
}

func scrapeMetrics(t *testing.T, baseURL string) string {
	t.Helper()
	resp, err := http.Get(baseURL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	return body.String()
}

func TestServer_StopBadID(t *testing.T) {
	g := newFixture(t)

	resp, env := g.post(t, "/api/measurements/abc/stop", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestServer_DownloadTXT(t *testing.T) {
	g := newFixture(t)

	resp, err := http.Get(g.ts.URL + "/api/measurements/7/download?format=txt")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "measurement_abc-123_")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".txt")

	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "abc-123")
}

func TestServer_DownloadUnknownFormat(t *testing.T) {
	g := newFixture(t)

	resp, err := http.Get(g.ts.URL + "/api/measurements/7/download?format=pdf")
	require.NoError(t, err)
	env := decodeEnvelope(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestServer_DownloadMissingMeasurement(t *testing.T) {
	g := newFixture(t)
	g.storage.byIDErr = errors.WrapInvalid(errors.ErrNotFound, "Store", "MeasurementByID", "query measurement")

	resp, err := http.Get(g.ts.URL + "/api/measurements/7/download?format=csv")
	require.NoError(t, err)
	decodeEnvelope(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_SendCommand(t *testing.T) {
	g := newFixture(t)

	resp, env := g.post(t, "/api/broker/command", `{"command":"start"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.Equal(t, []string{"start"}, g.pipeline.commands)
}

func TestServer_SendCommandRejected(t *testing.T) {
	g := newFixture(t)
	g.pipeline.commandErr = errors.WrapInvalid(errors.ErrInvalidCommand, "Supervisor", "SendCommand", "validate command")

	resp, env := g.post(t, "/api/broker/command", `{"command":"REBOOT"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestServer_SendParameters(t *testing.T) {
	g := newFixture(t)

	resp, _ := g.post(t, "/api/broker/parameters", `{"startPoint":-0.5,"firstVertex":0.5,"secondVertex":-0.5,"zeroCrosses":2,"scanRate":0.1}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, g.pipeline.params, 1)
	assert.Equal(t, -0.5, g.pipeline.params[0].StartPoint)
	assert.Equal(t, 2, g.pipeline.params[0].ZeroCrosses)
}

func TestServer_BrokerStatus(t *testing.T) {
	g := newFixture(t)
	g.pipeline.session = ingest.SessionSnapshot{SessionID: 42, Active: true, DeviceID: "ESP32_001"}

	resp, env := g.get(t, "/api/broker/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["connected"])
}

func TestServer_TransmissionStats(t *testing.T) {
	g := newFixture(t)
	g.pipeline.stats = ingest.StatsSnapshot{Received: 100, Processed: 95, Errors: 5}

	_, env := g.get(t, "/api/transmission/stats")
	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(100), data["received"])
	assert.Equal(t, float64(5), data["errors"])
}

func TestServer_DatabaseStatus(t *testing.T) {
	g := newFixture(t)

	resp, env := g.get(t, "/api/database/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
}

func TestServer_DatabaseStatusUnreachable(t *testing.T) {
	g := newFixture(t)
	g.storage.pingErr = errors.ErrStorageUnavailable

	resp, env := g.get(t, "/api/database/status")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestServer_SystemStatus(t *testing.T) {
	g := newFixture(t)

	_, env := g.get(t, "/api/system/status")
	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, data, "uptime")
	assert.Contains(t, data, "broker")
	assert.Contains(t, data, "stats")
}

func TestServer_Health(t *testing.T) {
	g := newFixture(t)

	resp, env := g.get(t, "/api/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
}

func TestServer_WiFiScan(t *testing.T) {
	g := newFixture(t)
	g.wifi.networks = []wifinet.Network{{SSID: "HomeNetwork", Signal: 85}}

	resp, env := g.get(t, "/api/wifi/scan")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, env.Count)
	assert.Equal(t, 1, *env.Count)
}

func TestServer_WiFiScanThrottled(t *testing.T) {
	g := newFixture(t)
	g.wifi.scanErr = errors.ErrScanThrottled

	resp, env := g.get(t, "/api/wifi/scan")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestServer_WiFiForget(t *testing.T) {
	g := newFixture(t)

	resp, _ := g.post(t, "/api/wifi/forget", `{"ssid":"OldNet"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"OldNet"}, g.wifi.forgot)
}

func TestServer_UnknownAPIRoute(t *testing.T) {
	g := newFixture(t)

	resp, env := g.get(t, "/api/does/not/exist")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, env.Success)
	assert.Equal(t, "endpoint not found", env.Error)
}

func TestServer_RequestIDHeader(t *testing.T) {
	g := newFixture(t)

	resp, err := http.Get(g.ts.URL + "/api/users")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, err := http.NewRequest(http.MethodGet, g.ts.URL+"/api/users", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "caller-supplied")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "caller-supplied", resp.Header.Get("X-Request-ID"))
}

func TestHub_BroadcastReachesSubscriber(t *testing.T) {
	g := newFixture(t)

	wsURL := "ws" + strings.TrimPrefix(g.ts.URL, "http") + "/api/live"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool {
		return g.server.Hub().ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	g.server.Hub().Broadcast("potentiostat.cv_data", []byte(`{"voltage":0.5,"current":1.2}`))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg liveMessage
	require.NoError(t, json.Unmarshal(frame, &msg))
	assert.Equal(t, "potentiostat.cv_data", msg.Topic)
	assert.JSONEq(t, `{"voltage":0.5,"current":1.2}`, string(msg.Payload))
}

func TestHub_NonJSONPayloadWrapped(t *testing.T) {
	hub := NewHub(nil)
	ts := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast("potentiostat.status", []byte("scanning"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg liveMessage
	require.NoError(t, json.Unmarshal(frame, &msg))
	assert.Equal(t, `"scanning"`, string(msg.Payload))
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	g := newFixture(t)

	wsURL := "ws" + strings.TrimPrefix(g.ts.URL, "http") + "/api/live"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool {
		return g.server.Hub().ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	g.server.Hub().Close()
	assert.Equal(t, 0, g.server.Hub().ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
