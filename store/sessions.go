package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/c360/biostream/errors"
	"github.com/c360/biostream/ingest"
)

// CreateSession opens a measurement session. The owning user is created on
// first use; the user upsert and the measurement insert run in one
// transaction so a failed insert never leaks a user row update.
func (s *Store) CreateSession(ctx context.Context, userAlias, deviceID string, params *ingest.ScanParams) (ingest.SessionInfo, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ingest.SessionInfo{}, errors.WrapTransient(err, "Store", "CreateSession", "begin transaction")
	}
	defer tx.Rollback(ctx)

	var userID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO users (alias) VALUES ($1)
		 ON CONFLICT (alias) DO UPDATE SET updated_at = NOW()
		 RETURNING id`,
		userAlias).Scan(&userID)
	if err != nil {
		return ingest.SessionInfo{}, errors.Wrap(err, "Store", "CreateSession", "upsert user")
	}

	var startPoint, firstVertex, secondVertex, scanRate *float64
	var zeroCrosses *int
	if params != nil {
		startPoint = &params.StartPoint
		firstVertex = &params.FirstVertex
		secondVertex = &params.SecondVertex
		zeroCrosses = &params.ZeroCrosses
		scanRate = &params.ScanRate
	}

	info := ingest.SessionInfo{
		UUID:      uuid.NewString(),
		UserAlias: userAlias,
		DeviceID:  deviceID,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO measurements (
			uuid, user_id, device_id, start_time, status,
			cv_start_point, cv_first_vertex, cv_second_vertex, cv_zero_crosses, cv_scan_rate
		 )
		 VALUES ($1, $2, $3, NOW(), 'active', $4, $5, $6, $7, $8)
		 RETURNING id, start_time`,
		info.UUID, userID, deviceID,
		startPoint, firstVertex, secondVertex, zeroCrosses, scanRate,
	).Scan(&info.ID, &info.StartedAt)
	if err != nil {
		return ingest.SessionInfo{}, errors.Wrap(err, "Store", "CreateSession", "insert measurement")
	}

	if err := tx.Commit(ctx); err != nil {
		return ingest.SessionInfo{}, errors.WrapTransient(err, "Store", "CreateSession", "commit transaction")
	}

	return info, nil
}

// FinalizeSession marks a measurement completed and stamps its end time.
func (s *Store) FinalizeSession(ctx context.Context, sessionID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE measurements
		 SET end_time = NOW(), status = 'completed', updated_at = NOW()
		 WHERE id = $1`,
		sessionID)
	if err != nil {
		return errors.Wrap(err, "Store", "FinalizeSession", "update measurement")
	}
	if tag.RowsAffected() == 0 {
		return errors.WrapInvalid(errors.ErrNotFound, "Store", "FinalizeSession", "find measurement")
	}
	return nil
}

const measurementSummaryQuery = `
	SELECT
		m.id, m.uuid, m.user_id, u.alias, u.name, m.device_id,
		m.start_time, m.end_time, m.status,
		m.cv_start_point, m.cv_first_vertex, m.cv_second_vertex, m.cv_zero_crosses, m.cv_scan_rate,
		m.created_at,
		COUNT(DISTINCT cv.id), COUNT(DISTINCT hr.id), COUNT(DISTINCT sp.id), COUNT(DISTINCT st.id)
	FROM measurements m
	INNER JOIN users u ON m.user_id = u.id
	LEFT JOIN cv_data cv ON m.id = cv.measurement_id
	LEFT JOIN heartrate_data hr ON m.id = hr.measurement_id
	LEFT JOIN spo2_data sp ON m.id = sp.measurement_id
	LEFT JOIN stress_data st ON m.id = st.measurement_id
	WHERE %s
	GROUP BY m.id, u.id
	ORDER BY m.created_at DESC
	LIMIT $2`

// MeasurementsByUser lists a user's measurements, newest first, with
// per-kind point counts.
func (s *Store) MeasurementsByUser(ctx context.Context, alias string, limit int) ([]MeasurementSummary, error) {
	return s.measurementSummaries(ctx, "u.alias = $1", alias, limit)
}

// MeasurementsByDevice lists a device's measurements, newest first, with
// per-kind point counts.
func (s *Store) MeasurementsByDevice(ctx context.Context, deviceID string, limit int) ([]MeasurementSummary, error) {
	return s.measurementSummaries(ctx, "m.device_id = $1", deviceID, limit)
}

func (s *Store) measurementSummaries(ctx context.Context, where string, key string, limit int) ([]MeasurementSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(measurementSummaryQuery, where)
	rows, err := s.pool.Query(ctx, query, key, limit)
	if err != nil {
		return nil, errors.Wrap(err, "Store", "measurementSummaries", "query measurements")
	}
	defer rows.Close()

	var out []MeasurementSummary
	for rows.Next() {
		var m MeasurementSummary
		err := rows.Scan(
			&m.ID, &m.UUID, &m.UserID, &m.UserAlias, &m.UserName, &m.DeviceID,
			&m.StartTime, &m.EndTime, &m.Status,
			&m.CVStartPoint, &m.CVFirstVertex, &m.CVSecondVertex, &m.CVZeroCrosses, &m.CVScanRate,
			&m.CreatedAt,
			&m.CVPoints, &m.HeartRatePoints, &m.SpO2Points, &m.StressPoints,
		)
		if err != nil {
			return nil, errors.Wrap(err, "Store", "measurementSummaries", "scan row")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "Store", "measurementSummaries", "iterate rows")
	}
	return out, nil
}

// MeasurementByID fetches one measurement together with all of its telemetry.
func (s *Store) MeasurementByID(ctx context.Context, id int64) (*MeasurementBundle, error) {
	var m Measurement
	err := s.pool.QueryRow(ctx,
		`SELECT m.id, m.uuid, m.user_id, u.alias, u.name, m.device_id,
			m.start_time, m.end_time, m.status,
			m.cv_start_point, m.cv_first_vertex, m.cv_second_vertex, m.cv_zero_crosses, m.cv_scan_rate,
			m.created_at
		 FROM measurements m
		 INNER JOIN users u ON m.user_id = u.id
		 WHERE m.id = $1`,
		id,
	).Scan(
		&m.ID, &m.UUID, &m.UserID, &m.UserAlias, &m.UserName, &m.DeviceID,
		&m.StartTime, &m.EndTime, &m.Status,
		&m.CVStartPoint, &m.CVFirstVertex, &m.CVSecondVertex, &m.CVZeroCrosses, &m.CVScanRate,
		&m.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.WrapInvalid(errors.ErrNotFound, "Store", "MeasurementByID", "find measurement")
		}
		return nil, errors.Wrap(err, "Store", "MeasurementByID", "query measurement")
	}

	bundle := &MeasurementBundle{Measurement: m}

	if bundle.CVData, err = s.cvPoints(ctx, id); err != nil {
		return nil, err
	}
	if bundle.HeartRate, err = s.heartRatePoints(ctx, id); err != nil {
		return nil, err
	}
	if bundle.SpO2, err = s.spo2Points(ctx, id); err != nil {
		return nil, err
	}
	if bundle.Stress, err = s.stressPoints(ctx, id); err != nil {
		return nil, err
	}

	return bundle, nil
}

// MeasurementByUUID resolves the externally-shareable identifier and fetches
// the full bundle.
func (s *Store) MeasurementByUUID(ctx context.Context, measurementUUID string) (*MeasurementBundle, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM measurements WHERE uuid = $1`, measurementUUID).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.WrapInvalid(errors.ErrNotFound, "Store", "MeasurementByUUID", "find measurement")
		}
		return nil, errors.Wrap(err, "Store", "MeasurementByUUID", "resolve uuid")
	}
	return s.MeasurementByID(ctx, id)
}

// Stats computes aggregate statistics over one measurement's telemetry.
func (s *Store) Stats(ctx context.Context, id int64) (*MeasurementStats, error) {
	var st MeasurementStats
	err := s.pool.QueryRow(ctx,
		`SELECT
			COUNT(cv.id),
			AVG(cv.voltage), AVG(cv.current), MIN(cv.voltage), MAX(cv.voltage),
			AVG(hr.bpm), MIN(hr.bpm), MAX(hr.bpm),
			AVG(sp.spo2), MIN(sp.spo2), MAX(sp.spo2),
			AVG(st.stress_level), MIN(st.stress_level), MAX(st.stress_level)
		 FROM measurements m
		 LEFT JOIN cv_data cv ON m.id = cv.measurement_id
		 LEFT JOIN heartrate_data hr ON m.id = hr.measurement_id
		 LEFT JOIN spo2_data sp ON m.id = sp.measurement_id
		 LEFT JOIN stress_data st ON m.id = st.measurement_id
		 WHERE m.id = $1
		 GROUP BY m.id`,
		id,
	).Scan(
		&st.CVPoints,
		&st.AvgVoltage, &st.AvgCurrent, &st.MinVoltage, &st.MaxVoltage,
		&st.AvgBPM, &st.MinBPM, &st.MaxBPM,
		&st.AvgSpO2, &st.MinSpO2, &st.MaxSpO2,
		&st.AvgStress, &st.MinStress, &st.MaxStress,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.WrapInvalid(errors.ErrNotFound, "Store", "Stats", "find measurement")
		}
		return nil, errors.Wrap(err, "Store", "Stats", "query stats")
	}
	return &st, nil
}

// DeleteOldMeasurements removes measurements older than the given number of
// days. Telemetry rows follow via cascade. Returns the number of
// measurements removed.
func (s *Store) DeleteOldMeasurements(ctx context.Context, daysOld int) (int64, error) {
	if daysOld <= 0 {
		daysOld = 90
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM measurements
		 WHERE created_at < NOW() - make_interval(days => $1)`,
		daysOld)
	if err != nil {
		return 0, errors.Wrap(err, "Store", "DeleteOldMeasurements", "delete measurements")
	}
	return tag.RowsAffected(), nil
}
