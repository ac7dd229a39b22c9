package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/c360/biostream/errors"
	"github.com/c360/biostream/ingest"
)

func startPostgresContainer(ctx context.Context, t *testing.T) (testcontainers.Container, Config) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "biostream",
			"POSTGRES_PASSWORD": "biostream",
			"POSTGRES_DB":       "biostream_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := Config{
		Host:     host,
		Port:     port.Int(),
		Database: "biostream_test",
		User:     "biostream",
		Password: "biostream",
	}
	return container, cfg
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, cfg := startPostgresContainer(ctx, t)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	s, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestIntegration_SessionLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	params := &ingest.ScanParams{
		StartPoint:   -0.5,
		FirstVertex:  0.5,
		SecondVertex: -0.5,
		ZeroCrosses:  2,
		ScanRate:     0.1,
	}
	info, err := s.CreateSession(ctx, "alice", "ESP32_001", params)
	require.NoError(t, err)
	assert.NotZero(t, info.ID)
	assert.NotEmpty(t, info.UUID)
	assert.Equal(t, "alice", info.UserAlias)

	// Telemetry against the open session.
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.InsertCV(ctx, info.ID, 0.5, 12.3, now))
	avg := 70.5
	require.NoError(t, s.InsertHeartRate(ctx, info.ID, 72, &avg, now))
	require.NoError(t, s.InsertSpO2(ctx, info.ID, 98, nil, now))
	require.NoError(t, s.InsertStress(ctx, info.ID, 0.82, now))

	require.NoError(t, s.FinalizeSession(ctx, info.ID))

	bundle, err := s.MeasurementByID(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", bundle.Measurement.Status)
	assert.NotNil(t, bundle.Measurement.EndTime)
	require.NotNil(t, bundle.Measurement.CVScanRate)
	assert.Equal(t, 0.1, *bundle.Measurement.CVScanRate)
	require.Len(t, bundle.CVData, 1)
	assert.Equal(t, 0.5, bundle.CVData[0].Voltage)
	require.Len(t, bundle.HeartRate, 1)
	require.NotNil(t, bundle.HeartRate[0].AvgBPM)
	assert.Equal(t, 70.5, *bundle.HeartRate[0].AvgBPM)
	require.Len(t, bundle.SpO2, 1)
	assert.Nil(t, bundle.SpO2[0].AvgSpO2)
	require.Len(t, bundle.Stress, 1)

	byUUID, err := s.MeasurementByUUID(ctx, info.UUID)
	require.NoError(t, err)
	assert.Equal(t, info.ID, byUUID.Measurement.ID)
}

func TestIntegration_FinalizeUnknownSession(t *testing.T) {
	s := setupTestStore(t)

	err := s.FinalizeSession(context.Background(), 99999)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestIntegration_MeasurementListings(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		info, err := s.CreateSession(ctx, "bob", fmt.Sprintf("DEV_%d", i%2), nil)
		require.NoError(t, err)
		require.NoError(t, s.InsertCV(ctx, info.ID, 0.1, 1.0, time.Now().UTC()))
	}

	byUser, err := s.MeasurementsByUser(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, byUser, 3)
	assert.Equal(t, int64(1), byUser[0].CVPoints)

	byDevice, err := s.MeasurementsByDevice(ctx, "DEV_0", 10)
	require.NoError(t, err)
	assert.Len(t, byDevice, 2)

	users, err := s.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(3), users[0].TotalMeasurements)
}

func TestIntegration_Stats(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	info, err := s.CreateSession(ctx, "carol", "ESP32_001", nil)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, s.InsertCV(ctx, info.ID, 0.2, 5, now))
	require.NoError(t, s.InsertCV(ctx, info.ID, 0.4, 7, now))

	stats, err := s.Stats(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.CVPoints)
	require.NotNil(t, stats.MinVoltage)
	assert.Equal(t, 0.2, *stats.MinVoltage)
	require.NotNil(t, stats.MaxVoltage)
	assert.Equal(t, 0.4, *stats.MaxVoltage)
	assert.Nil(t, stats.AvgBPM)
}

func TestIntegration_InsertCVBatchAtomic(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	info, err := s.CreateSession(ctx, "dave", "ESP32_001", nil)
	require.NoError(t, err)

	now := time.Now().UTC()
	points := []CVBatchPoint{
		{SessionID: info.ID, Voltage: 0.1, Current: 1, Timestamp: now},
		{SessionID: info.ID, Voltage: 0.2, Current: 2, Timestamp: now},
		{SessionID: 99999, Voltage: 0.3, Current: 3, Timestamp: now},
	}
	// The third point violates the foreign key; nothing may land.
	require.Error(t, s.InsertCVBatch(ctx, points))

	bundle, err := s.MeasurementByID(ctx, info.ID)
	require.NoError(t, err)
	assert.Empty(t, bundle.CVData)

	require.NoError(t, s.InsertCVBatch(ctx, points[:2]))
	bundle, err = s.MeasurementByID(ctx, info.ID)
	require.NoError(t, err)
	assert.Len(t, bundle.CVData, 2)
}

func TestIntegration_DeviceUpserts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertDevice(ctx, "D9", "bench", "10.0.0.9"))
	// Second announcement without a name keeps the existing one.
	require.NoError(t, s.UpsertDevice(ctx, "D9", "", "10.0.0.10"))

	devices, err := s.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.NotNil(t, devices[0].Name)
	assert.Equal(t, "bench", *devices[0].Name)
	require.NotNil(t, devices[0].IPAddress)
	assert.Equal(t, "10.0.0.10", *devices[0].IPAddress)
}

func TestIntegration_TableCounts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	info, err := s.CreateSession(ctx, "erin", "ESP32_001", nil)
	require.NoError(t, err)
	require.NoError(t, s.InsertCV(ctx, info.ID, 0.1, 1, time.Now().UTC()))

	counts, err := s.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Users)
	assert.Equal(t, int64(1), counts.Measurements)
	assert.Equal(t, int64(1), counts.CVData)
	assert.Equal(t, int64(0), counts.Devices)
}
