package store

import (
	"context"

	"github.com/c360/biostream/errors"
)

// UpsertDevice records a device announcement, creating the row on first
// sight and refreshing name, address, and last-seen afterwards. Empty name
// and address are stored as NULL.
func (s *Store) UpsertDevice(ctx context.Context, deviceID, name, ipAddress string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO devices (device_id, device_name, ip_address, last_seen)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NOW())
		 ON CONFLICT (device_id)
		 DO UPDATE SET
			device_name = COALESCE(EXCLUDED.device_name, devices.device_name),
			ip_address = COALESCE(EXCLUDED.ip_address, devices.ip_address),
			last_seen = NOW(),
			updated_at = NOW()`,
		deviceID, name, ipAddress)
	if err != nil {
		return errors.Wrap(err, "Store", "UpsertDevice", "upsert device")
	}
	return nil
}

// Devices lists every known device with aggregate measurement counts, most
// recently seen first.
func (s *Store) Devices(ctx context.Context) ([]DeviceSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT
			d.id, d.device_id, d.device_name, d.ip_address, d.last_seen, d.created_at,
			COUNT(DISTINCT m.id), MAX(m.created_at)
		 FROM devices d
		 LEFT JOIN measurements m ON d.device_id = m.device_id
		 GROUP BY d.id
		 ORDER BY d.last_seen DESC NULLS LAST`)
	if err != nil {
		return nil, errors.Wrap(err, "Store", "Devices", "query devices")
	}
	defer rows.Close()

	var out []DeviceSummary
	for rows.Next() {
		var d DeviceSummary
		err := rows.Scan(
			&d.ID, &d.DeviceID, &d.Name, &d.IPAddress, &d.LastSeen, &d.CreatedAt,
			&d.TotalMeasurements, &d.LastMeasurement,
		)
		if err != nil {
			return nil, errors.Wrap(err, "Store", "Devices", "scan row")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
