// Package ingest implements the telemetry ingestion and session-correlation
// pipeline.
//
// Inbound messages from the device arrive over NATS subjects and are handed
// to the Router, which resolves the telemetry kind by exact subject match and
// invokes the corresponding handler. Each handler validates the payload,
// resolves the active measurement session from the SessionRegistry,
// normalizes the record's timestamp, and writes a single append-only row
// through the store. Delivery statistics are tracked for the life of the
// process.
//
// Telemetry is a best-effort stream, not a durable queue: a malformed message
// is dropped and counted, a message arriving outside an active session window
// is dropped silently, and a failed write is logged and lost. No error in the
// pipeline ever tears down the broker connection.
package ingest
