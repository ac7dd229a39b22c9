package ingest

// Subjects carrying device telemetry and control traffic. The inbound set is
// fixed; the router dispatches by exact match.
const (
	TopicCVData      = "potentiostat.cv_data"
	TopicRawData     = "potentiostat.raw_data"
	TopicStatus      = "potentiostat.status"
	TopicHeartRate   = "sensor.heartrate"
	TopicSpO2        = "sensor.spo2"
	TopicStress      = "sensor.stress_laccase"
	TopicESP32Status = "device.esp32.status"
	TopicESP32Config = "device.esp32.config"
	TopicParams      = "potentiostat.params"
	TopicCommand     = "potentiostat.command"

	// TopicBackendStatus carries the backend-online announcement published
	// after every successful connect.
	TopicBackendStatus = "backend.status"
)

// Topics returns the full fixed set of inbound subjects, in subscription
// order.
func Topics() []string {
	return []string{
		TopicCVData,
		TopicRawData,
		TopicStatus,
		TopicHeartRate,
		TopicSpO2,
		TopicStress,
		TopicESP32Status,
		TopicESP32Config,
		TopicParams,
		TopicCommand,
	}
}

// Command tokens accepted on the outbound command topic.
const (
	CommandStart = "START"
	CommandStop  = "STOP"
	CommandClear = "CLEAR"
)

// validCommands is the fixed outbound command vocabulary.
var validCommands = map[string]bool{
	CommandStart: true,
	CommandStop:  true,
	CommandClear: true,
}
