package store

import (
	"context"
	"time"

	"github.com/c360/biostream/errors"
)

// InsertCV persists one voltammetry point.
func (s *Store) InsertCV(ctx context.Context, sessionID int64, voltage, current float64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cv_data (measurement_id, voltage, current, timestamp)
		 VALUES ($1, $2, $3, $4)`,
		sessionID, voltage, current, at)
	if err != nil {
		return errors.Wrap(err, "Store", "InsertCV", "insert point")
	}
	return nil
}

// CVBatchPoint is one element of a bulk voltammetry insert.
type CVBatchPoint struct {
	SessionID int64
	Voltage   float64
	Current   float64
	Timestamp time.Time
}

// InsertCVBatch persists many voltammetry points in one transaction. Either
// every point lands or none do.
func (s *Store) InsertCVBatch(ctx context.Context, points []CVBatchPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.WrapTransient(err, "Store", "InsertCVBatch", "begin transaction")
	}
	defer tx.Rollback(ctx)

	for _, p := range points {
		_, err := tx.Exec(ctx,
			`INSERT INTO cv_data (measurement_id, voltage, current, timestamp)
			 VALUES ($1, $2, $3, $4)`,
			p.SessionID, p.Voltage, p.Current, p.Timestamp)
		if err != nil {
			return errors.Wrap(err, "Store", "InsertCVBatch", "insert point")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.WrapTransient(err, "Store", "InsertCVBatch", "commit transaction")
	}
	return nil
}

// InsertHeartRate persists one heart-rate point.
func (s *Store) InsertHeartRate(ctx context.Context, sessionID int64, bpm float64, avgBPM *float64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO heartrate_data (measurement_id, bpm, avg_bpm, timestamp)
		 VALUES ($1, $2, $3, $4)`,
		sessionID, bpm, avgBPM, at)
	if err != nil {
		return errors.Wrap(err, "Store", "InsertHeartRate", "insert point")
	}
	return nil
}

// InsertSpO2 persists one oxygen-saturation point.
func (s *Store) InsertSpO2(ctx context.Context, sessionID int64, spo2 float64, avgSpO2 *float64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO spo2_data (measurement_id, spo2, avg_spo2, timestamp)
		 VALUES ($1, $2, $3, $4)`,
		sessionID, spo2, avgSpO2, at)
	if err != nil {
		return errors.Wrap(err, "Store", "InsertSpO2", "insert point")
	}
	return nil
}

// InsertStress persists one stress point.
func (s *Store) InsertStress(ctx context.Context, sessionID int64, level float64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stress_data (measurement_id, stress_level, timestamp)
		 VALUES ($1, $2, $3)`,
		sessionID, level, at)
	if err != nil {
		return errors.Wrap(err, "Store", "InsertStress", "insert point")
	}
	return nil
}

func (s *Store) cvPoints(ctx context.Context, measurementID int64) ([]CVPoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, voltage, current, timestamp
		 FROM cv_data WHERE measurement_id = $1 ORDER BY timestamp`,
		measurementID)
	if err != nil {
		return nil, errors.Wrap(err, "Store", "cvPoints", "query points")
	}
	defer rows.Close()

	var out []CVPoint
	for rows.Next() {
		var p CVPoint
		if err := rows.Scan(&p.ID, &p.Voltage, &p.Current, &p.Timestamp); err != nil {
			return nil, errors.Wrap(err, "Store", "cvPoints", "scan row")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) heartRatePoints(ctx context.Context, measurementID int64) ([]HeartRatePoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, bpm, avg_bpm, timestamp
		 FROM heartrate_data WHERE measurement_id = $1 ORDER BY timestamp`,
		measurementID)
	if err != nil {
		return nil, errors.Wrap(err, "Store", "heartRatePoints", "query points")
	}
	defer rows.Close()

	var out []HeartRatePoint
	for rows.Next() {
		var p HeartRatePoint
		if err := rows.Scan(&p.ID, &p.BPM, &p.AvgBPM, &p.Timestamp); err != nil {
			return nil, errors.Wrap(err, "Store", "heartRatePoints", "scan row")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) spo2Points(ctx context.Context, measurementID int64) ([]SpO2Point, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, spo2, avg_spo2, timestamp
		 FROM spo2_data WHERE measurement_id = $1 ORDER BY timestamp`,
		measurementID)
	if err != nil {
		return nil, errors.Wrap(err, "Store", "spo2Points", "query points")
	}
	defer rows.Close()

	var out []SpO2Point
	for rows.Next() {
		var p SpO2Point
		if err := rows.Scan(&p.ID, &p.SpO2, &p.AvgSpO2, &p.Timestamp); err != nil {
			return nil, errors.Wrap(err, "Store", "spo2Points", "scan row")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) stressPoints(ctx context.Context, measurementID int64) ([]StressPoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, stress_level, timestamp
		 FROM stress_data WHERE measurement_id = $1 ORDER BY timestamp`,
		measurementID)
	if err != nil {
		return nil, errors.Wrap(err, "Store", "stressPoints", "query points")
	}
	defer rows.Close()

	var out []StressPoint
	for rows.Next() {
		var p StressPoint
		if err := rows.Scan(&p.ID, &p.Level, &p.Timestamp); err != nil {
			return nil, errors.Wrap(err, "Store", "stressPoints", "scan row")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
