package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Push event outcomes recorded by WritePushEvent.
const (
	PushOutcomeApplied       = "applied"
	PushOutcomeUnknownDevice = "unknown_device"
	PushOutcomeParseFailure  = "parse_failure"
	PushOutcomeNoHardwareID  = "no_hardware_id"
	PushOutcomeUnclassified  = "unclassified"
	PushOutcomeOverflow      = "overflow"
)

// WritePushEvent records the outcome of one inbound push frame.
//
// The push-patch path drops malformed frames and unknown devices silently
// by design; this counter is the metrics hook that keeps those drops
// observable without destabilising the live feed.
//
// Parameters:
//   - outcome: One of the PushOutcome* constants
func (c *Client) WritePushEvent(outcome string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"push_events",
		map[string]string{
			"outcome": outcome,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePollCycle records the outcome of one poll cycle.
//
// Parameters:
//   - duration: Wall-clock time of the full sync+query+merge
//   - deviceCount: Devices bucketed into the store (0 on failure)
//   - ok: Whether the cycle completed without error
func (c *Client) WritePollCycle(duration time.Duration, deviceCount int, ok bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"poll_cycles",
		map[string]string{
			"result": pollResult(ok),
		},
		map[string]interface{}{
			"duration_ms":  duration.Milliseconds(),
			"device_count": deviceCount,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

func pollResult(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// WriteCommand records one outbound command publish attempt.
//
// Parameters:
//   - kind: Command kind (on_off, brightness, fan_speed, color_temp, position, scene)
//   - published: Whether the broker acknowledged the publish
func (c *Client) WriteCommand(kind string, published bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"commands",
		map[string]string{
			"kind":      kind,
			"published": pollResult(published),
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
