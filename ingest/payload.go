package ingest

// Wire payloads as the device publishes them. Required numeric fields are
// pointers so a missing field is distinguishable from a zero value; timestamp
// stays untyped because the device mixes encodings (see ParseTimestamp).

type cvPayload struct {
	Voltage     *float64 `json:"voltage"`
	Current     *float64 `json:"current"`
	CurrentUnit string   `json:"current_unit,omitempty"`
	Timestamp   any      `json:"timestamp,omitempty"`
}

type heartRatePayload struct {
	BPM       *float64 `json:"bpm"`
	AvgBPM    *float64 `json:"avg_bpm,omitempty"`
	Timestamp any      `json:"timestamp,omitempty"`
}

type spo2Payload struct {
	SpO2      *float64 `json:"spo2"`
	AvgSpO2   *float64 `json:"avg_spo2,omitempty"`
	Timestamp any      `json:"timestamp,omitempty"`
}

type stressPayload struct {
	StressLaccase *float64 `json:"stress_laccase"`
	Timestamp     any      `json:"timestamp,omitempty"`
}

type deviceStatusPayload struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
}

// ScanParams carries the voltammetry sweep configuration sent to the device
// and stored alongside the session.
type ScanParams struct {
	StartPoint   float64 `json:"startPoint"`
	FirstVertex  float64 `json:"firstVertex"`
	SecondVertex float64 `json:"secondVertex"`
	ZeroCrosses  int     `json:"zeroCrosses"`
	ScanRate     float64 `json:"scanRate"`
}
