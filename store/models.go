package store

import "time"

// User is a row in the users table.
type User struct {
	ID        int64     `json:"id"`
	Alias     string    `json:"alias"`
	Name      *string   `json:"name,omitempty"`
	Email     *string   `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserSummary is a user with aggregate measurement counts.
type UserSummary struct {
	User
	TotalMeasurements   int64      `json:"totalMeasurements"`
	LastMeasurementDate *time.Time `json:"lastMeasurementDate,omitempty"`
}

// Measurement is a row in the measurements table joined with its owner's
// identity.
type Measurement struct {
	ID             int64      `json:"id"`
	UUID           string     `json:"uuid"`
	UserID         int64      `json:"userId"`
	UserAlias      string     `json:"userAlias"`
	UserName       *string    `json:"userName,omitempty"`
	DeviceID       string     `json:"deviceId"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	Status         string     `json:"status"`
	CVStartPoint   *float64   `json:"cvStartPoint,omitempty"`
	CVFirstVertex  *float64   `json:"cvFirstVertex,omitempty"`
	CVSecondVertex *float64   `json:"cvSecondVertex,omitempty"`
	CVZeroCrosses  *int       `json:"cvZeroCrosses,omitempty"`
	CVScanRate     *float64   `json:"cvScanRate,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// MeasurementSummary is a measurement with per-kind point counts.
type MeasurementSummary struct {
	Measurement
	CVPoints        int64 `json:"cvPoints"`
	HeartRatePoints int64 `json:"heartRatePoints"`
	SpO2Points      int64 `json:"spo2Points"`
	StressPoints    int64 `json:"stressPoints"`
}

// CVPoint is one voltammetry observation.
type CVPoint struct {
	ID        int64     `json:"id"`
	Voltage   float64   `json:"voltage"`
	Current   float64   `json:"current"`
	Timestamp time.Time `json:"timestamp"`
}

// HeartRatePoint is one heart-rate observation.
type HeartRatePoint struct {
	ID        int64     `json:"id"`
	BPM       float64   `json:"bpm"`
	AvgBPM    *float64  `json:"avgBpm,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SpO2Point is one oxygen-saturation observation.
type SpO2Point struct {
	ID        int64     `json:"id"`
	SpO2      float64   `json:"spo2"`
	AvgSpO2   *float64  `json:"avgSpo2,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StressPoint is one stress observation.
type StressPoint struct {
	ID        int64     `json:"id"`
	Level     float64   `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// MeasurementBundle is a measurement together with all of its telemetry.
type MeasurementBundle struct {
	Measurement Measurement      `json:"measurement"`
	CVData      []CVPoint        `json:"cvData"`
	HeartRate   []HeartRatePoint `json:"heartrateData"`
	SpO2        []SpO2Point      `json:"spo2Data"`
	Stress      []StressPoint    `json:"stressData"`
}

// MeasurementStats are aggregate statistics over one measurement's
// telemetry. Nil aggregates mean no points of that kind.
type MeasurementStats struct {
	CVPoints   int64    `json:"cvPoints"`
	AvgVoltage *float64 `json:"avgVoltage,omitempty"`
	AvgCurrent *float64 `json:"avgCurrent,omitempty"`
	MinVoltage *float64 `json:"minVoltage,omitempty"`
	MaxVoltage *float64 `json:"maxVoltage,omitempty"`
	AvgBPM     *float64 `json:"avgBpm,omitempty"`
	MinBPM     *float64 `json:"minBpm,omitempty"`
	MaxBPM     *float64 `json:"maxBpm,omitempty"`
	AvgSpO2    *float64 `json:"avgSpo2,omitempty"`
	MinSpO2    *float64 `json:"minSpo2,omitempty"`
	MaxSpO2    *float64 `json:"maxSpo2,omitempty"`
	AvgStress  *float64 `json:"avgStress,omitempty"`
	MinStress  *float64 `json:"minStress,omitempty"`
	MaxStress  *float64 `json:"maxStress,omitempty"`
}

// Device is a row in the devices table.
type Device struct {
	ID        int64      `json:"id"`
	DeviceID  string     `json:"deviceId"`
	Name      *string    `json:"deviceName,omitempty"`
	IPAddress *string    `json:"ipAddress,omitempty"`
	LastSeen  *time.Time `json:"lastSeen,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// DeviceSummary is a device with aggregate measurement counts.
type DeviceSummary struct {
	Device
	TotalMeasurements int64      `json:"totalMeasurements"`
	LastMeasurement   *time.Time `json:"lastMeasurement,omitempty"`
}
