package store

import (
	"context"

	"github.com/c360/biostream/errors"
)

// TableCountsResult holds per-table row counts for the database status
// report.
type TableCountsResult struct {
	Users        int64 `json:"users"`
	Measurements int64 `json:"measurements"`
	CVData       int64 `json:"cvData"`
	Devices      int64 `json:"devices"`
}

// TableCounts reports row counts for the main tables.
func (s *Store) TableCounts(ctx context.Context) (*TableCountsResult, error) {
	var counts TableCountsResult
	err := s.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM measurements),
			(SELECT COUNT(*) FROM cv_data),
			(SELECT COUNT(*) FROM devices)`,
	).Scan(&counts.Users, &counts.Measurements, &counts.CVData, &counts.Devices)
	if err != nil {
		return nil, errors.Wrap(err, "Store", "TableCounts", "query counts")
	}
	return &counts, nil
}
