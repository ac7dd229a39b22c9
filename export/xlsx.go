package export

import (
	"bytes"

	"github.com/xuri/excelize/v2"

	"github.com/c360/biostream/errors"
	"github.com/c360/biostream/store"
)

// XLSX renders the bundle as a spreadsheet with one sheet per telemetry kind.
func XLSX(b *store.MeasurementBundle) ([]byte, error) {
	m := b.Measurement
	f := excelize.NewFile()
	defer f.Close()

	// The default sheet becomes the info sheet.
	const infoSheet = "Info"
	if err := f.SetSheetName("Sheet1", infoSheet); err != nil {
		return nil, errors.Wrap(err, "export", "XLSX", "rename sheet")
	}

	user := m.UserAlias
	if m.UserName != nil {
		user += " (" + *m.UserName + ")"
	}
	endTime := "N/A"
	if m.EndTime != nil {
		endTime = m.EndTime.UTC().String()
	}

	infoRows := [][]any{
		{"POTENTIOSTAT - MEASUREMENT REPORT"},
		{},
		{"Measurement UUID", m.UUID},
		{"User", user},
		{"Device", orNA(m.DeviceID)},
		{"Start Time", m.StartTime.UTC().String()},
		{"End Time", endTime},
		{"Status", m.Status},
		{},
		{"CV PARAMETERS"},
		{"Start Point (V)", deref(m.CVStartPoint)},
		{"First Vertex (V)", deref(m.CVFirstVertex)},
		{"Second Vertex (V)", deref(m.CVSecondVertex)},
		{"Zero Crosses", derefInt(m.CVZeroCrosses)},
		{"Scan Rate (V/s)", deref(m.CVScanRate)},
	}
	if err := writeRows(f, infoSheet, infoRows); err != nil {
		return nil, err
	}

	if len(b.CVData) > 0 {
		rows := [][]any{{"Point", "Voltage (V)", "Current (uA)", "Timestamp"}}
		for i, p := range b.CVData {
			rows = append(rows, []any{i + 1, p.Voltage, p.Current, p.Timestamp.UTC().String()})
		}
		if err := addSheet(f, "CV Data", rows); err != nil {
			return nil, err
		}
	}

	if len(b.HeartRate) > 0 {
		rows := [][]any{{"Point", "BPM", "Avg BPM", "Timestamp"}}
		for i, p := range b.HeartRate {
			rows = append(rows, []any{i + 1, p.BPM, floatOrNA(p.AvgBPM), p.Timestamp.UTC().String()})
		}
		if err := addSheet(f, "Heart Rate", rows); err != nil {
			return nil, err
		}
	}

	if len(b.SpO2) > 0 {
		rows := [][]any{{"Point", "SpO2 (%)", "Avg SpO2 (%)", "Timestamp"}}
		for i, p := range b.SpO2 {
			rows = append(rows, []any{i + 1, p.SpO2, floatOrNA(p.AvgSpO2), p.Timestamp.UTC().String()})
		}
		if err := addSheet(f, "SpO2", rows); err != nil {
			return nil, err
		}
	}

	if len(b.Stress) > 0 {
		rows := [][]any{{"Point", "Stress Level", "Timestamp"}}
		for i, p := range b.Stress {
			rows = append(rows, []any{i + 1, p.Level, p.Timestamp.UTC().String()})
		}
		if err := addSheet(f, "Stress", rows); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, errors.Wrap(err, "export", "XLSX", "write workbook")
	}
	return buf.Bytes(), nil
}

func addSheet(f *excelize.File, name string, rows [][]any) error {
	if _, err := f.NewSheet(name); err != nil {
		return errors.Wrap(err, "export", "addSheet", "create sheet "+name)
	}
	return writeRows(f, name, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return errors.Wrap(err, "export", "writeRows", "compute cell")
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return errors.Wrap(err, "export", "writeRows", "write row")
		}
	}
	return nil
}
