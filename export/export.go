// Package export renders a measurement bundle as a downloadable report in
// plain-text, CSV, or spreadsheet form.
package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/c360/biostream/store"
)

// Format identifies a report format.
type Format string

// Supported report formats. JSON is handled by the API layer directly.
const (
	FormatJSON Format = "json"
	FormatTXT  Format = "txt"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps the query value to a format, defaulting to JSON.
func ParseFormat(s string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, true
	case FormatTXT:
		return FormatTXT, true
	case FormatCSV:
		return FormatCSV, true
	case FormatXLSX:
		return FormatXLSX, true
	default:
		return "", false
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatTXT:
		return "text/plain"
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// Filename builds the download filename for a measurement.
func Filename(measurementUUID string, f Format, now time.Time) string {
	return fmt.Sprintf("measurement_%s_%s.%s", measurementUUID, now.UTC().Format("2006-01-02"), f)
}

// Render produces the report body for the given format. JSON renders the
// bundle itself.
func Render(b *store.MeasurementBundle, f Format) ([]byte, error) {
	switch f {
	case FormatTXT:
		return []byte(TXT(b)), nil
	case FormatCSV:
		return []byte(CSV(b)), nil
	case FormatXLSX:
		return XLSX(b)
	default:
		return json.MarshalIndent(b, "", "  ")
	}
}

const divider = "============================================================"

// TXT renders the bundle as a tab-separated plain-text report.
func TXT(b *store.MeasurementBundle) string {
	m := b.Measurement
	var sb strings.Builder

	sb.WriteString(divider + "\n")
	sb.WriteString("  POTENTIOSTAT - MEASUREMENT REPORT\n")
	sb.WriteString(divider + "\n\n")

	fmt.Fprintf(&sb, "Measurement UUID: %s\n", m.UUID)
	user := m.UserAlias
	if m.UserName != nil {
		user += " (" + *m.UserName + ")"
	}
	fmt.Fprintf(&sb, "User: %s\n", user)
	fmt.Fprintf(&sb, "Device: %s\n", orNA(m.DeviceID))
	fmt.Fprintf(&sb, "Start: %s\n", m.StartTime.UTC().Format(time.RFC3339))
	if m.EndTime != nil {
		fmt.Fprintf(&sb, "End: %s\n", m.EndTime.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&sb, "Status: %s\n\n", m.Status)

	if m.CVStartPoint != nil {
		sb.WriteString("--- CYCLIC VOLTAMMETRY PARAMETERS ---\n")
		fmt.Fprintf(&sb, "Start Point: %v V\n", *m.CVStartPoint)
		fmt.Fprintf(&sb, "First Vertex: %v V\n", deref(m.CVFirstVertex))
		fmt.Fprintf(&sb, "Second Vertex: %v V\n", deref(m.CVSecondVertex))
		fmt.Fprintf(&sb, "Zero Crosses: %v\n", derefInt(m.CVZeroCrosses))
		fmt.Fprintf(&sb, "Scan Rate: %v V/s\n\n", deref(m.CVScanRate))
	}

	if len(b.CVData) > 0 {
		sb.WriteString("--- CYCLIC VOLTAMMETRY DATA ---\n")
		sb.WriteString("Point\tVoltage(V)\tCurrent(uA)\tTimestamp\n")
		for i, p := range b.CVData {
			fmt.Fprintf(&sb, "%d\t%v\t%v\t%s\n", i+1, p.Voltage, p.Current, p.Timestamp.UTC().Format("15:04:05"))
		}
		sb.WriteString("\n")
	}

	if len(b.HeartRate) > 0 {
		sb.WriteString("--- HEART RATE DATA ---\n")
		sb.WriteString("Point\tBPM\tAvg BPM\tTimestamp\n")
		for i, p := range b.HeartRate {
			fmt.Fprintf(&sb, "%d\t%v\t%s\t%s\n", i+1, p.BPM, floatOrNA(p.AvgBPM), p.Timestamp.UTC().Format("15:04:05"))
		}
		sb.WriteString("\n")
	}

	if len(b.SpO2) > 0 {
		sb.WriteString("--- SPO2 DATA ---\n")
		sb.WriteString("Point\tSpO2(%)\tAvg SpO2(%)\tTimestamp\n")
		for i, p := range b.SpO2 {
			fmt.Fprintf(&sb, "%d\t%v\t%s\t%s\n", i+1, p.SpO2, floatOrNA(p.AvgSpO2), p.Timestamp.UTC().Format("15:04:05"))
		}
		sb.WriteString("\n")
	}

	if len(b.Stress) > 0 {
		sb.WriteString("--- STRESS DATA ---\n")
		sb.WriteString("Point\tStress Level\tTimestamp\n")
		for i, p := range b.Stress {
			fmt.Fprintf(&sb, "%d\t%v\t%s\n", i+1, p.Level, p.Timestamp.UTC().Format("15:04:05"))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(divider + "\n")
	sb.WriteString("Generated by Potentiostat IoT System\n")
	sb.WriteString(divider + "\n")

	return sb.String()
}

// CSV renders the bundle as a multi-section CSV report.
func CSV(b *store.MeasurementBundle) string {
	m := b.Measurement
	var sb strings.Builder

	fmt.Fprintf(&sb, "Measurement UUID,%s\n", m.UUID)
	fmt.Fprintf(&sb, "User,%s\n", m.UserAlias)
	fmt.Fprintf(&sb, "Device,%s\n", orNA(m.DeviceID))
	fmt.Fprintf(&sb, "Start Time,%s\n", m.StartTime.UTC().Format(time.RFC3339))
	if m.EndTime != nil {
		fmt.Fprintf(&sb, "End Time,%s\n", m.EndTime.UTC().Format(time.RFC3339))
	} else {
		sb.WriteString("End Time,N/A\n")
	}
	fmt.Fprintf(&sb, "Status,%s\n\n", m.Status)

	if m.CVStartPoint != nil {
		sb.WriteString("CV Parameters\n")
		fmt.Fprintf(&sb, "Start Point (V),%v\n", *m.CVStartPoint)
		fmt.Fprintf(&sb, "First Vertex (V),%v\n", deref(m.CVFirstVertex))
		fmt.Fprintf(&sb, "Second Vertex (V),%v\n", deref(m.CVSecondVertex))
		fmt.Fprintf(&sb, "Zero Crosses,%v\n", derefInt(m.CVZeroCrosses))
		fmt.Fprintf(&sb, "Scan Rate (V/s),%v\n\n", deref(m.CVScanRate))
	}

	if len(b.CVData) > 0 {
		sb.WriteString("Cyclic Voltammetry Data\n")
		sb.WriteString("Point,Voltage (V),Current (uA),Timestamp\n")
		for i, p := range b.CVData {
			fmt.Fprintf(&sb, "%d,%v,%v,%s\n", i+1, p.Voltage, p.Current, p.Timestamp.UTC().Format(time.RFC3339))
		}
		sb.WriteString("\n")
	}

	if len(b.HeartRate) > 0 {
		sb.WriteString("Heart Rate Data\n")
		sb.WriteString("Point,BPM,Avg BPM,Timestamp\n")
		for i, p := range b.HeartRate {
			fmt.Fprintf(&sb, "%d,%v,%s,%s\n", i+1, p.BPM, floatOrNA(p.AvgBPM), p.Timestamp.UTC().Format(time.RFC3339))
		}
		sb.WriteString("\n")
	}

	if len(b.SpO2) > 0 {
		sb.WriteString("SpO2 Data\n")
		sb.WriteString("Point,SpO2 (%),Avg SpO2 (%),Timestamp\n")
		for i, p := range b.SpO2 {
			fmt.Fprintf(&sb, "%d,%v,%s,%s\n", i+1, p.SpO2, floatOrNA(p.AvgSpO2), p.Timestamp.UTC().Format(time.RFC3339))
		}
		sb.WriteString("\n")
	}

	if len(b.Stress) > 0 {
		sb.WriteString("Stress Data\n")
		sb.WriteString("Point,Stress Level,Timestamp\n")
		for i, p := range b.Stress {
			fmt.Fprintf(&sb, "%d,%v,%s\n", i+1, p.Level, p.Timestamp.UTC().Format(time.RFC3339))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func floatOrNA(f *float64) string {
	if f == nil {
		return "N/A"
	}
	return fmt.Sprintf("%v", *f)
}

func deref(f *float64) any {
	if f == nil {
		return "N/A"
	}
	return *f
}

func derefInt(i *int) any {
	if i == nil {
		return "N/A"
	}
	return *i
}
