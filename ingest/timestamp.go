package ingest

import (
	"strconv"
	"time"
)

// serialDayEpoch anchors spreadsheet-style serial day counts: day 1 is
// 1899-12-31T00:00:00Z.
var serialDayEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// ParseTimestamp converts the heterogeneous timestamp encodings the device
// emits into a canonical UTC instant. The policy, evaluated in order:
//
//  1. Absent input: current wall-clock time.
//  2. A string containing a date/time separator that parses as a calendar
//     date/time: that instant, taken as-is.
//  3. A number strictly between 0 and 100000: serial day count from the
//     1899-12-30 epoch.
//  4. A number in [1e9, 1e10): whole seconds since the Unix epoch.
//  5. A number >= 1e10: milliseconds since the Unix epoch.
//  6. Anything else: current wall-clock time.
//
// ParseTimestamp never fails: a malformed timestamp must not block ingestion
// of the rest of the payload, so ambiguity always resolves to a best-effort
// instant.
func ParseTimestamp(v any) time.Time {
	switch val := v.(type) {
	case nil:
		return time.Now().UTC()
	case string:
		if val == "" {
			return time.Now().UTC()
		}
		if containsDateSeparator(val) {
			if t, ok := parseCalendarString(val); ok {
				return t
			}
		}
		// Numeric strings fall through to the numeric rules.
		if n, err := strconv.ParseFloat(val, 64); err == nil {
			return fromNumeric(n)
		}
		return time.Now().UTC()
	case float64:
		return fromNumeric(val)
	case float32:
		return fromNumeric(float64(val))
	case int:
		return fromNumeric(float64(val))
	case int64:
		return fromNumeric(float64(val))
	default:
		return time.Now().UTC()
	}
}

func containsDateSeparator(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == 'T' {
			return true
		}
	}
	return false
}

// parseCalendarString accepts RFC 3339 with or without sub-second precision,
// and a zone-less variant taken as UTC (no timezone inference beyond what the
// format carries).
func parseCalendarString(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func fromNumeric(v float64) time.Time {
	switch {
	case v > 0 && v < 100000:
		// Serial day count: epoch + v days, millisecond resolution.
		ms := int64(v * 86400000)
		return serialDayEpoch.Add(time.Duration(ms) * time.Millisecond)
	case v >= 1e9 && v < 1e10:
		return time.Unix(int64(v), 0).UTC()
	case v >= 1e10:
		return time.UnixMilli(int64(v)).UTC()
	default:
		// Zero, negative, or otherwise ambiguous: silent fallback.
		return time.Now().UTC()
	}
}
