package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTimestamp_Absent(t *testing.T) {
	for _, v := range []any{nil, "", struct{}{}} {
		got := ParseTimestamp(v)
		assert.WithinDuration(t, time.Now().UTC(), got, 2*time.Second)
		assert.Equal(t, time.UTC, got.Location())
	}
}

func TestParseTimestamp_SerialDayCount(t *testing.T) {
	tests := []struct {
		in   float64
		want time.Time
	}{
		{1, time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC)},
		{2, time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)},
		{25569, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)},
		{45000.5, time.Date(2023, 3, 15, 12, 0, 0, 0, time.UTC)},
		{99999, time.Date(2173, 10, 13, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseTimestamp(tt.in), "serial day %v", tt.in)
	}
}

func TestParseTimestamp_UnixSeconds(t *testing.T) {
	assert.Equal(t,
		time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC),
		ParseTimestamp(float64(1700000000)))
	assert.Equal(t,
		time.Date(2001, 9, 9, 1, 46, 40, 0, time.UTC),
		ParseTimestamp(float64(1000000000)))
}

func TestParseTimestamp_UnixMilliseconds(t *testing.T) {
	assert.Equal(t,
		time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC),
		ParseTimestamp(float64(1700000000000)))
	// Boundary: 1e10 is interpreted as milliseconds, not seconds.
	assert.Equal(t,
		time.Date(1970, 4, 26, 17, 46, 40, 0, time.UTC),
		ParseTimestamp(float64(10000000000)))
}

func TestParseTimestamp_CalendarString(t *testing.T) {
	got := ParseTimestamp("2024-06-01T10:30:00Z")
	assert.True(t, got.Equal(time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)))

	// Idempotence: an already-canonical instant round-trips equivalently.
	canonical := time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)
	again := ParseTimestamp(canonical.Format(time.RFC3339))
	assert.True(t, canonical.Equal(again))

	// Zone-less variant is taken as UTC.
	got = ParseTimestamp("2024-06-01T10:30:00")
	assert.True(t, got.Equal(time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)))

	// Offset is honored.
	got = ParseTimestamp("2024-06-01T10:30:00+02:00")
	assert.True(t, got.Equal(time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)))
}

func TestParseTimestamp_NumericString(t *testing.T) {
	assert.Equal(t,
		time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC),
		ParseTimestamp("1700000000"))
}

func TestParseTimestamp_SilentFallback(t *testing.T) {
	// Malformed or out-of-range inputs never error; they resolve to now.
	for _, v := range []any{"not-a-date", "2024-99-99T99:99:99Z", float64(0), float64(-5), float64(100000)} {
		got := ParseTimestamp(v)
		assert.WithinDuration(t, time.Now().UTC(), got, 2*time.Second, "input %v", v)
	}
}
