package store

import (
	"context"

	"github.com/c360/biostream/errors"
)

// schema is the full database schema. Every statement is idempotent so
// Migrate can run on every startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id          SERIAL PRIMARY KEY,
		alias       VARCHAR(100) UNIQUE NOT NULL,
		name        VARCHAR(255),
		email       VARCHAR(255),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS measurements (
		id               SERIAL PRIMARY KEY,
		uuid             UUID UNIQUE NOT NULL,
		user_id          INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		device_id        VARCHAR(100) NOT NULL,
		start_time       TIMESTAMPTZ NOT NULL,
		end_time         TIMESTAMPTZ,
		status           VARCHAR(20) NOT NULL DEFAULT 'active',
		cv_start_point   DOUBLE PRECISION,
		cv_first_vertex  DOUBLE PRECISION,
		cv_second_vertex DOUBLE PRECISION,
		cv_zero_crosses  INTEGER,
		cv_scan_rate     DOUBLE PRECISION,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS cv_data (
		id             SERIAL PRIMARY KEY,
		measurement_id INTEGER NOT NULL REFERENCES measurements(id) ON DELETE CASCADE,
		voltage        DOUBLE PRECISION NOT NULL,
		current        DOUBLE PRECISION NOT NULL,
		timestamp      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS heartrate_data (
		id             SERIAL PRIMARY KEY,
		measurement_id INTEGER NOT NULL REFERENCES measurements(id) ON DELETE CASCADE,
		bpm            DOUBLE PRECISION NOT NULL,
		avg_bpm        DOUBLE PRECISION,
		timestamp      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS spo2_data (
		id             SERIAL PRIMARY KEY,
		measurement_id INTEGER NOT NULL REFERENCES measurements(id) ON DELETE CASCADE,
		spo2           DOUBLE PRECISION NOT NULL,
		avg_spo2       DOUBLE PRECISION,
		timestamp      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stress_data (
		id             SERIAL PRIMARY KEY,
		measurement_id INTEGER NOT NULL REFERENCES measurements(id) ON DELETE CASCADE,
		stress_level   DOUBLE PRECISION NOT NULL,
		timestamp      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS devices (
		id          SERIAL PRIMARY KEY,
		device_id   VARCHAR(100) UNIQUE NOT NULL,
		device_name VARCHAR(255),
		ip_address  VARCHAR(45),
		last_seen   TIMESTAMPTZ,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_measurements_user_id ON measurements(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_measurements_device_id ON measurements(device_id)`,
	`CREATE INDEX IF NOT EXISTS idx_cv_data_measurement ON cv_data(measurement_id)`,
	`CREATE INDEX IF NOT EXISTS idx_heartrate_data_measurement ON heartrate_data(measurement_id)`,
	`CREATE INDEX IF NOT EXISTS idx_spo2_data_measurement ON spo2_data(measurement_id)`,
	`CREATE INDEX IF NOT EXISTS idx_stress_data_measurement ON stress_data(measurement_id)`,
}

// Migrate applies the schema. Safe to call on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return errors.WrapFatal(err, "Store", "Migrate", "apply schema")
		}
	}
	return nil
}
