// Package push maintains the AWS IoT MQTT session: inbound device deltas
// and outbound hardware commands.
//
// The broker serves MQTT over TLS on port 443 behind ALPN, authenticated
// by a custom authorizer that unpacks a bearer token from the connect
// username. The username therefore contains a live credential and must
// never appear in logs.
//
// The client is deliberately dumb about payloads. It moves bytes between
// topics and a channel; classification and state conversion belong to
// the sync coordinator.
package push
