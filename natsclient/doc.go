// Package natsclient manages the connection to the NATS broker that carries
// device telemetry.
//
// The client exposes an explicit connection lifecycle:
//
//	disconnected -> connecting -> connected -> {reconnecting | disconnected | closed}
//
// Automatic reconnection is owned by the underlying nats.go client with a
// fixed wait between attempts. After MaxReconnects consecutive attempts the
// connection closes terminally: the client transitions to disconnected and
// stays there until the process is restarted. Close() transitions to the
// closed state deterministically from any other state.
//
// Inbound telemetry subjects are consumed through a JetStream stream with a
// durable consumer (explicit acks after handler return), giving the
// at-least-once delivery the ingestion pipeline expects. Outbound publishes
// of control commands fail fast when the connection is down; nothing is ever
// queued for later delivery.
package natsclient
