// Package biostream is a telemetry backend for ESP32-based potentiostat and
// biosensor devices.
//
// Devices publish cyclic voltammetry sweeps, heart rate, SpO2, and stress
// readings to NATS JetStream. The backend consumes the telemetry stream,
// correlates readings with the active measurement session, and persists them
// to Postgres. A REST API starts and stops sessions, sends scan parameters
// and commands back to the device, and serves stored measurements as JSON,
// plain-text, CSV, or spreadsheet reports. A WebSocket feed mirrors the raw
// telemetry to dashboards in real time.
//
// The module is organized as:
//
//   - natsclient: JetStream broker client with a bounded reconnect policy
//   - ingest: topic routing, session registry, timestamp normalization, and
//     the pipeline supervisor
//   - store: Postgres persistence for users, measurements, and telemetry
//   - gateway/http: the REST API, live feed, and metrics endpoint
//   - export: downloadable measurement reports
//   - wifinet: host Wi-Fi management for appliance deployments
//   - config, errors, health, metric: shared infrastructure
//
// The cmd/biostream binary wires everything together.
package biostream
