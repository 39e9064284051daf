// Package influxdb provides the optional telemetry sink for the bridge.
//
// The sync engine's error policy is deliberately quiet: malformed push
// frames and patches for unknown devices are dropped without surfacing
// errors, and failed command publishes return false rather than raising.
// This package is the counterpart to that policy - every silent drop and
// soft failure is recorded as a counter so operators can see them.
//
// # Measurements
//
//   - push_events: one point per inbound frame, tagged by outcome
//     (applied, parse_failure, unknown_device, no_hardware_id,
//     unclassified, overflow)
//   - poll_cycles: duration, device count, and result per poll
//   - commands: publish attempts tagged by kind and acknowledgement
//
// Telemetry is disabled by default. All write helpers no-op on a nil or
// disconnected client, so call sites never guard their calls.
package influxdb
